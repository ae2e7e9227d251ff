package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/cartstore/internal/cart"
	"github.com/vladislavdragonenkov/cartstore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/cartstore/internal/health"
	"github.com/vladislavdragonenkov/cartstore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cartstore/internal/metrics"
	"github.com/vladislavdragonenkov/cartstore/internal/persistence"
	grpcsvc "github.com/vladislavdragonenkov/cartstore/internal/service/grpc"
	"github.com/vladislavdragonenkov/cartstore/internal/service/outbox"
	"github.com/vladislavdragonenkov/cartstore/internal/service/session"
	"github.com/vladislavdragonenkov/cartstore/internal/service/web"
	"github.com/vladislavdragonenkov/cartstore/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает корзину сессии со всеми транспортами и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := log.WithFields(log.Fields{"component": "app", "session_id": sessionID})

	deps, err := initRuntimeDependencies(ctx, cfg, sessionID, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	cartMetrics := metrics.NewCartMetrics()

	adapter := persistence.NewAdapter(deps.slot,
		persistence.WithLogger(logger.WithField("layer", "persistence")),
		persistence.WithRecorder(cartMetrics),
	)
	store := cart.New(ctx,
		cart.WithLogger(logger.WithField("layer", "cart")),
		cart.WithPersister(adapter),
		cart.WithRecorder(cartMetrics),
	)
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("failed to close cart store")
		}
	}()

	svc := session.NewService(sessionID, store, deps.catalog, logger.WithField("layer", "session"))

	// Фоновые задачи останавливаются вместе с runCtx.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	if watcher, ok := deps.slot.(domain.SlotWatcher); ok {
		go watchSlot(runCtx, watcher, store, cartMetrics, logger)
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion()).WithSession(sessionID)
	if pinger, ok := deps.slot.(domain.Pinger); ok {
		healthHandler.RegisterChecker("cart_slot", healthcheck.NewPingChecker("cart_slot", pinger, 0))
	}

	// Ошибка уже залогирована: без Kafka корзина работает, поток событий выключен.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	var background sync.WaitGroup
	defer func() {
		cancelRun()
		background.Wait()
		closeKafka(producer, logger)
	}()

	var consumer *kafka.Consumer
	if producer != nil {
		worker := outbox.NewWorker(deps.outboxRepo, kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
			outbox.WithRecorder(cartMetrics),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		unsubscribe := store.Subscribe(outbox.NewCartListener(deps.outboxRepo, sessionID, worker, logger.WithField("layer", "outbox")))
		defer unsubscribe()
		background.Add(1)
		go func() {
			defer background.Done()
			worker.Run(runCtx)
		}()
		if pruner, ok := deps.outboxRepo.(domain.OutboxPruner); ok {
			cleanup := outbox.NewCleanupWorker(pruner,
				outbox.WithCleanupLogger(logger.WithField("layer", "outbox-cleanup")),
				outbox.WithCleanupRecorder(cartMetrics),
				outbox.WithCleanupInterval(cfg.OutboxCleanupInterval),
				outbox.WithRetention(cfg.OutboxRetention),
			)
			background.Add(1)
			go func() {
				defer background.Done()
				cleanup.Run(runCtx)
			}()
		}
		healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxChecker("outbox", deps.outboxRepo, cfg.OutboxMaxPending))

		consumer, err = initCommandConsumer(cfg, sessionID, store, producer, logger)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka consumer, cart commands are disabled")
			consumer = nil
		} else if err := consumer.Start(runCtx); err != nil {
			logger.WithError(err).Warn("failed to start kafka consumer")
		}
	}
	defer func() {
		if consumer == nil {
			return
		}
		cancelRun()
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}()

	cartService := grpcsvc.NewCartService(svc, logger.WithField("layer", "grpc"))
	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcsvc.RegisterCartServiceServer(grpcServer, cartService)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	webSrv := startHTTPServer(ctx, cfg.HTTPAddr, "cart web", web.NewHandler(svc, cfg.CurrencySymbol, logger.WithField("layer", "web")).Routes(), logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(webSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		_ = cartService.Shutdown(context.Background())
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			grpcServer.Stop()
		}
		shutdownHTTP(webSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		_ = cartService.Shutdown(context.Background())
		shutdownHTTP(webSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// watchSlot перечитывает корзину, когда другой процесс записал в ту же ячейку.
func watchSlot(ctx context.Context, watcher domain.SlotWatcher, store *cart.Store, recorder *metrics.CartMetrics, logger *log.Entry) {
	err := watcher.Watch(ctx, func() {
		snap := store.Resync(ctx)
		recorder.RecordResync()
		logger.WithFields(log.Fields{
			"revision": snap.Revision(),
			"lines":    snap.LineCount(),
		}).Debug("cart resynced from storage")
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Warn("cart slot watcher stopped")
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
	return startHTTPServer(ctx, addr, "metrics", mux, logger)
}

func startHTTPServer(ctx context.Context, addr, name string, handler http.Handler, logger *log.Entry) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("%s сервер слушает %s", name, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).WithField("server", name).Warn("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
