package grpcsvc

import (
	"context"
	"errors"
	"math"
	"sync"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/cartstore/internal/cart"
	"github.com/vladislavdragonenkov/cartstore/internal/domain"
	"github.com/vladislavdragonenkov/cartstore/internal/service/session"
)

const watchBufferSize = 16

// CartService реализует gRPC API поверх корзины сессии.
type CartService struct {
	session *session.Service
	logger  *log.Entry

	mu       sync.Mutex
	closed   bool
	shutdown chan struct{}
}

var _ CartServiceServer = (*CartService)(nil)

// NewCartService конструирует сервис с зависимостями.
func NewCartService(svc *session.Service, logger *log.Entry) *CartService {
	if logger == nil {
		logger = log.New().WithField("component", "cart-grpc")
	}
	return &CartService{
		session:  svc,
		logger:   logger,
		shutdown: make(chan struct{}),
	}
}

// GetCart возвращает текущее состояние корзины.
func (s *CartService) GetCart(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return s.respond(s.session.Snapshot(), "GetCart")
}

// AddItem добавляет товар из каталога. Количество по умолчанию 1.
func (s *CartService) AddItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID, size, err := readLineKey(req)
	if err != nil {
		return nil, err
	}
	quantity, err := readQuantity(req, 1)
	if err != nil {
		return nil, err
	}

	snap, err := s.session.AddProduct(ctx, productID, size, quantity)
	if err != nil {
		return nil, s.mapError(err, productID)
	}
	return s.respond(snap, "AddItem")
}

// UpdateQuantity устанавливает количество позиции. Ноль удаляет позицию.
func (s *CartService) UpdateQuantity(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID, size, err := readLineKey(req)
	if err != nil {
		return nil, err
	}
	if _, ok := req.GetFields()["quantity"]; !ok {
		return nil, status.Error(codes.InvalidArgument, "quantity is required")
	}
	quantity, err := readQuantity(req, 0)
	if err != nil {
		return nil, err
	}
	return s.respond(s.session.UpdateQuantity(productID, size, quantity), "UpdateQuantity")
}

// RemoveItem удаляет позицию.
func (s *CartService) RemoveItem(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID, size, err := readLineKey(req)
	if err != nil {
		return nil, err
	}
	return s.respond(s.session.RemoveItem(productID, size), "RemoveItem")
}

// ClearCart очищает корзину.
func (s *CartService) ClearCart(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return s.respond(s.session.Clear(), "ClearCart")
}

// WatchCart отправляет текущий снимок и затем снимок после каждой мутации.
// Медленный клиент получает только последние состояния: промежуточные отбрасываются.
func (s *CartService) WatchCart(_ *emptypb.Empty, stream grpc.ServerStream) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return status.Error(codes.Unavailable, "cart service is shutting down")
	}
	s.mu.Unlock()

	updates := make(chan cart.Snapshot, watchBufferSize)
	unsubscribe := s.session.Subscribe(func(snap cart.Snapshot) {
		select {
		case updates <- snap:
		default:
			s.logger.WithField("revision", snap.Revision()).Debug("watch buffer full, dropping snapshot")
		}
	})
	defer unsubscribe()

	if err := s.send(stream, s.session.Snapshot()); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.shutdown:
			return status.Error(codes.Unavailable, "cart service is shutting down")
		case snap := <-updates:
			if err := s.send(stream, snap); err != nil {
				return err
			}
		}
	}
}

// Shutdown завершает открытые потоки WatchCart.
func (s *CartService) Shutdown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.shutdown)
	return nil
}

func (s *CartService) send(stream grpc.ServerStream, snap cart.Snapshot) error {
	msg, err := SnapshotToStruct(snap)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode cart snapshot")
		return status.Error(codes.Internal, "failed to encode cart")
	}
	return stream.SendMsg(msg)
}

func (s *CartService) respond(snap cart.Snapshot, operation string) (*structpb.Struct, error) {
	msg, err := SnapshotToStruct(snap)
	if err != nil {
		s.logger.WithError(err).WithField("operation", operation).Error("failed to encode cart snapshot")
		return nil, status.Error(codes.Internal, "failed to encode cart")
	}
	return msg, nil
}

func (s *CartService) mapError(err error, productID string) error {
	switch {
	case errors.Is(err, domain.ErrProductIDRequired):
		return status.Error(codes.InvalidArgument, "product_id is required")
	case errors.Is(err, domain.ErrProductNotFound):
		return status.Errorf(codes.NotFound, "product %s not found", productID)
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.WithError(err).WithField("product_id", productID).Error("catalog lookup failed")
		return status.Error(codes.Unavailable, "catalog is unavailable")
	}
}

// readLineKey читает product_id и size. Отсутствующий или null size означает товар без размера.
func readLineKey(req *structpb.Struct) (string, domain.Size, error) {
	if req == nil {
		return "", domain.NoSize, status.Error(codes.InvalidArgument, "request is required")
	}
	fields := req.GetFields()

	idValue, ok := fields["product_id"]
	if !ok {
		return "", domain.NoSize, status.Error(codes.InvalidArgument, "product_id is required")
	}
	idString, ok := idValue.GetKind().(*structpb.Value_StringValue)
	if !ok || idString.StringValue == "" {
		return "", domain.NoSize, status.Error(codes.InvalidArgument, "product_id must be a non-empty string")
	}

	sizeValue, ok := fields["size"]
	if !ok {
		return idString.StringValue, domain.NoSize, nil
	}
	switch kind := sizeValue.GetKind().(type) {
	case *structpb.Value_NullValue:
		return idString.StringValue, domain.NoSize, nil
	case *structpb.Value_StringValue:
		return idString.StringValue, domain.SizeOf(kind.StringValue), nil
	default:
		return "", domain.NoSize, status.Error(codes.InvalidArgument, "size must be a string or null")
	}
}

// readQuantity читает целое количество. Выход за границы не ошибка: корзина приводит его сама.
func readQuantity(req *structpb.Struct, fallback int) (int, error) {
	value, ok := req.GetFields()["quantity"]
	if !ok {
		return fallback, nil
	}
	number, ok := value.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Error(codes.InvalidArgument, "quantity must be a number")
	}
	q := number.NumberValue
	if math.IsNaN(q) || math.IsInf(q, 0) || q != math.Trunc(q) {
		return 0, status.Error(codes.InvalidArgument, "quantity must be an integer")
	}
	switch {
	case q > math.MaxInt32:
		return math.MaxInt32, nil
	case q < math.MinInt32:
		return math.MinInt32, nil
	}
	return int(q), nil
}
