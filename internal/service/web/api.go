package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/cartstore/internal/cart"
	"github.com/vladislavdragonenkov/cartstore/internal/domain"
	"github.com/vladislavdragonenkov/cartstore/internal/view"
)

const maxJSONBytes = 64 << 10

// itemRequest — тело JSON-запросов к позициям. Отсутствующий size равен null.
type itemRequest struct {
	ProductID string      `json:"product_id"`
	Size      domain.Size `json:"size"`
	Quantity  *int        `json:"quantity"`
}

type cartResponse struct {
	Revision          uint64         `json:"revision"`
	LineCount         int            `json:"line_count"`
	ItemCount         int            `json:"item_count"`
	Subtotal          string         `json:"subtotal"`
	SubtotalFormatted string         `json:"subtotal_formatted"`
	IsEmpty           bool           `json:"is_empty"`
	Lines             []lineResponse `json:"lines"`
}

type lineResponse struct {
	ProductID string      `json:"product_id"`
	Slug      string      `json:"slug"`
	Title     string      `json:"title"`
	Size      domain.Size `json:"size"`
	Quantity  int         `json:"quantity"`
	Price     string      `json:"price"`
	LineTotal string      `json:"line_total"`
	ImageURL  string      `json:"image_url"`
	ImageAlt  string      `json:"image_alt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) toResponse(snap cart.Snapshot) cartResponse {
	resp := cartResponse{
		Revision:          snap.Revision(),
		LineCount:         snap.LineCount(),
		ItemCount:         snap.ItemCount(),
		Subtotal:          snap.Subtotal().StringFixed(domain.MinorUnitScale),
		SubtotalFormatted: view.FormatPrice(snap.Subtotal(), h.currency),
		IsEmpty:           snap.IsEmpty(),
		Lines:             make([]lineResponse, 0, snap.LineCount()),
	}
	for _, line := range snap.Lines() {
		props := view.NewLine(line, nil, nil, h.currency).Props()
		resp.Lines = append(resp.Lines, lineResponse{
			ProductID: line.ProductID,
			Slug:      line.Slug,
			Title:     line.Title,
			Size:      line.Size,
			Quantity:  line.Quantity,
			Price:     line.Price.StringFixed(domain.MinorUnitScale),
			LineTotal: line.LineTotal().StringFixed(domain.MinorUnitScale),
			ImageURL:  props.ImageURL,
			ImageAlt:  props.ImageAlt,
		})
	}
	return resp
}

// HandleGetCart возвращает корзину в JSON.
func (h *Handler) HandleGetCart(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, h.toResponse(h.session.Snapshot()))
}

// HandleAddItem добавляет товар. Количество по умолчанию 1.
func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeItemRequest(w, r)
	if !ok {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	snap, err := h.session.AddProduct(r.Context(), req.ProductID, req.Size, quantity)
	if err != nil {
		h.writeDomainError(w, err, req.ProductID)
		return
	}
	respondWithJSON(w, http.StatusOK, h.toResponse(snap))
}

// HandleUpdateQuantity устанавливает количество позиции.
func (h *Handler) HandleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeItemRequest(w, r)
	if !ok {
		return
	}
	if req.Quantity == nil {
		respondWithError(w, http.StatusBadRequest, "quantity is required")
		return
	}
	respondWithJSON(w, http.StatusOK, h.toResponse(h.session.UpdateQuantity(req.ProductID, req.Size, *req.Quantity)))
}

// HandleRemoveItem удаляет позицию.
func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeItemRequest(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, h.toResponse(h.session.RemoveItem(req.ProductID, req.Size)))
}

// HandleClearCart очищает корзину.
func (h *Handler) HandleClearCart(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, h.toResponse(h.session.Clear()))
}

func decodeItemRequest(w http.ResponseWriter, r *http.Request) (itemRequest, bool) {
	var req itemRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		msg := "invalid request body"
		if !errors.Is(err, io.EOF) {
			msg += ": " + err.Error()
		}
		respondWithError(w, http.StatusBadRequest, msg)
		return itemRequest{}, false
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		respondWithError(w, http.StatusBadRequest, domain.ErrProductIDRequired.Error())
		return itemRequest{}, false
	}
	return req, true
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Error: message})
}
