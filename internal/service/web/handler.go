package web

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
	"github.com/vladislavdragonenkov/cartstore/internal/service/session"
	"github.com/vladislavdragonenkov/cartstore/internal/view"
)

const (
	cartPath     = "/cart"
	maxFormBytes = 64 << 10
)

// Handler отдаёт HTML-страницу корзины и JSON API поверх сессии.
type Handler struct {
	session  *session.Service
	currency string
	logger   *log.Entry
}

// NewHandler создаёт HTTP-обработчик корзины.
func NewHandler(svc *session.Service, currency string, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "cart-web")
	}
	if currency == "" {
		currency = view.DefaultCurrencySymbol
	}
	return &Handler{session: svc, currency: currency, logger: logger}
}

// Routes собирает роутер chi со всеми маршрутами корзины.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, cartPath, http.StatusFound)
	})

	r.Route(cartPath, func(r chi.Router) {
		r.Get("/", h.HandleCartPage)
		r.Post("/items", h.HandleFormAdd)
		r.Post("/items/quantity", h.HandleFormQuantity)
		r.Post("/items/remove", h.HandleFormRemove)
		r.Post("/clear", h.HandleFormClear)
	})

	r.Route("/api/cart", func(r chi.Router) {
		r.Get("/", h.HandleGetCart)
		r.Delete("/", h.HandleClearCart)
		r.Post("/items", h.HandleAddItem)
		r.Put("/items", h.HandleUpdateQuantity)
		r.Delete("/items", h.HandleRemoveItem)
	})

	return r
}

// HandleCartPage рендерит страницу корзины.
func (h *Handler) HandleCartPage(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := view.RenderPage(&buf, view.BuildPage(h.session.Snapshot(), h.currency)); err != nil {
		h.logger.WithError(err).Error("failed to render cart page")
		http.Error(w, "failed to render cart", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// HandleFormAdd добавляет товар из HTML-формы.
func (h *Handler) HandleFormAdd(w http.ResponseWriter, r *http.Request) {
	productID, size, ok := h.parseLineForm(w, r)
	if !ok {
		return
	}
	quantity, err := formQuantity(r, 1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.session.AddProduct(r.Context(), productID, size, quantity); err != nil {
		h.writeDomainError(w, err, productID)
		return
	}
	http.Redirect(w, r, cartPath, http.StatusSeeOther)
}

// HandleFormQuantity устанавливает количество из кнопок +/-.
func (h *Handler) HandleFormQuantity(w http.ResponseWriter, r *http.Request) {
	productID, size, ok := h.parseLineForm(w, r)
	if !ok {
		return
	}
	if r.PostForm.Get("quantity") == "" {
		http.Error(w, "quantity is required", http.StatusBadRequest)
		return
	}
	quantity, err := formQuantity(r, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.session.UpdateQuantity(productID, size, quantity)
	http.Redirect(w, r, cartPath, http.StatusSeeOther)
}

// HandleFormRemove удаляет позицию.
func (h *Handler) HandleFormRemove(w http.ResponseWriter, r *http.Request) {
	productID, size, ok := h.parseLineForm(w, r)
	if !ok {
		return
	}
	h.session.RemoveItem(productID, size)
	http.Redirect(w, r, cartPath, http.StatusSeeOther)
}

// HandleFormClear очищает корзину.
func (h *Handler) HandleFormClear(w http.ResponseWriter, r *http.Request) {
	h.session.Clear()
	http.Redirect(w, r, cartPath, http.StatusSeeOther)
}

// parseLineForm читает product_id и size. Отсутствующее поле size означает товар без размера,
// пустое значение — вариант "".
func (h *Handler) parseLineForm(w http.ResponseWriter, r *http.Request) (string, domain.Size, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return "", domain.NoSize, false
	}

	productID := strings.TrimSpace(r.PostForm.Get("product_id"))
	if productID == "" {
		http.Error(w, domain.ErrProductIDRequired.Error(), http.StatusBadRequest)
		return "", domain.NoSize, false
	}

	size := domain.NoSize
	if values, ok := r.PostForm["size"]; ok && len(values) > 0 {
		size = domain.SizeOf(values[0])
	}
	return productID, size, true
}

func formQuantity(r *http.Request, fallback int) (int, error) {
	raw := strings.TrimSpace(r.PostForm.Get("quantity"))
	if raw == "" {
		return fallback, nil
	}
	quantity, err := strconv.Atoi(raw)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			if strings.HasPrefix(raw, "-") {
				return 0, nil
			}
			return domain.MaxItemQuantity, nil
		}
		return 0, errors.New("quantity must be an integer")
	}
	return quantity, nil
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, productID string) {
	switch {
	case errors.Is(err, domain.ErrProductIDRequired):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrProductNotFound):
		respondWithError(w, http.StatusNotFound, "product "+productID+" not found")
	default:
		h.logger.WithError(err).WithField("product_id", productID).Error("catalog lookup failed")
		respondWithError(w, http.StatusServiceUnavailable, "catalog is unavailable")
	}
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}
