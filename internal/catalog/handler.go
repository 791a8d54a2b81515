package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatekeeper/pkg/platform/httputil"
	request "gatekeeper/pkg/platform/middleware/request"
	"gatekeeper/pkg/platform/sentinel"
)

// MessageResponse is the body used for catalog misses.
type MessageResponse struct {
	Message string `json:"message"`
}

type ProductStore interface {
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id string) (*Product, error)
}

type Handler struct {
	store  ProductStore
	logger *slog.Logger
}

func NewHandler(store ProductStore, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts the product routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/products", h.HandleListProducts)
	r.Get("/products/{id}", h.HandleGetProduct)
}

func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	products, err := h.store.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list products",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, products)
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	product, err := h.store.Get(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, sentinel.ErrNotFound) {
		httputil.WriteJSON(w, http.StatusNotFound, &MessageResponse{Message: "Product Not Found"})
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get product",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, product)
}

// NotFound answers unmatched routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusNotFound, &MessageResponse{Message: "Route Not Found"})
}
