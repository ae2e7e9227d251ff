package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

// Status представляет статус компонента
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const defaultPingTimeout = 2 * time.Second

// Check представляет проверку здоровья компонента
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response представляет ответ health check
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	SessionID     string           `json:"session_id,omitempty"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker интерфейс для проверки здоровья компонента
type Checker interface {
	Check() Check
}

// Handler обрабатывает health check запросы
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	sessionID string
	startTime time.Time
}

// NewHandler создаёт новый health handler
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		startTime: time.Now(),
	}
}

// WithSession добавляет идентификатор сессии корзины в ответ.
func (h *Handler) WithSession(sessionID string) *Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessionID = sessionID
	return h
}

// RegisterChecker регистрирует проверку компонента
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

func (h *Handler) runChecks() (map[string]Check, Status) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	checkers := make(map[string]Checker, len(h.checkers))
	for name, checker := range h.checkers {
		names = append(names, name)
		checkers[name] = checker
	}
	h.mu.RUnlock()
	sort.Strings(names)

	checks := make(map[string]Check, len(names))
	overall := StatusHealthy
	for _, name := range names {
		check := checkers[name].Check()
		checks[name] = check

		switch {
		case check.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case check.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}
	return checks, overall
}

// ServeHTTP обрабатывает HTTP запрос
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	checks, overall := h.runChecks()

	h.mu.RLock()
	response := Response{
		Status:        overall,
		Timestamp:     time.Now(),
		SessionID:     h.sessionID,
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
	h.mu.RUnlock()

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler простой liveness probe (всегда возвращает 200)
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler проверяет готовность к обработке запросов.
// Деградация не снимает готовность: корзина работает и без хранилища.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	if _, overall := h.runChecks(); overall == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// SimpleChecker простая проверка с функцией
type SimpleChecker struct {
	name    string
	checkFn func() error
}

// NewSimpleChecker создаёт простую проверку
func NewSimpleChecker(name string, checkFn func() error) *SimpleChecker {
	return &SimpleChecker{
		name:    name,
		checkFn: checkFn,
	}
}

// Check выполняет проверку
func (c *SimpleChecker) Check() Check {
	start := time.Now()
	err := c.checkFn()
	return result(c.name, StatusUnhealthy, err, time.Since(start))
}

// PingChecker проверяет доступность хранилища корзины.
// Недоступное хранилище даёт degraded: мутации продолжают работать в памяти.
type PingChecker struct {
	name    string
	pinger  domain.Pinger
	timeout time.Duration
}

// NewPingChecker создаёт проверку поверх Pinger.
func NewPingChecker(name string, pinger domain.Pinger, timeout time.Duration) *PingChecker {
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return &PingChecker{name: name, pinger: pinger, timeout: timeout}
}

// Check выполняет ping с таймаутом.
func (c *PingChecker) Check() Check {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	err := c.pinger.Ping(ctx)
	return result(c.name, StatusDegraded, err, time.Since(start))
}

// OutboxChecker помечает сервис degraded, если очередь outbox растёт.
type OutboxChecker struct {
	name      string
	repo      domain.OutboxRepository
	threshold int
}

// NewOutboxChecker создаёт проверку backlog outbox.
func NewOutboxChecker(name string, repo domain.OutboxRepository, threshold int) *OutboxChecker {
	return &OutboxChecker{name: name, repo: repo, threshold: threshold}
}

// Check сравнивает число ожидающих сообщений с порогом.
func (c *OutboxChecker) Check() Check {
	start := time.Now()
	stats, err := c.repo.Stats()
	if err != nil {
		return result(c.name, StatusDegraded, err, time.Since(start))
	}
	if c.threshold > 0 && stats.PendingCount > c.threshold {
		err = fmt.Errorf("%d pending messages exceed threshold %d", stats.PendingCount, c.threshold)
	}
	return result(c.name, StatusDegraded, err, time.Since(start))
}

func result(name string, failStatus Status, err error, duration time.Duration) Check {
	if err != nil {
		return Check{
			Name:       name,
			Status:     failStatus,
			Message:    err.Error(),
			DurationMs: duration.Milliseconds(),
		}
	}
	return Check{
		Name:       name,
		Status:     StatusHealthy,
		DurationMs: duration.Milliseconds(),
	}
}
