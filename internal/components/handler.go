package components

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stockline-erp/stockline/internal/platform/httpx"
)

// Handler exposes read-only component stock gauges. Mutations flow
// through goods receipts, work orders and disposals.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs components handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers component stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{itemID}", h.handleGet)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	stock, err := h.service.Get(r.Context(), itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stockView(stock))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(stocks))
	for _, s := range stocks {
		views = append(views, stockView(s))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": views})
}

func stockView(s Stock) map[string]any {
	return map[string]any{
		"itemId":       s.ItemID,
		"currentStock": s.CurrentStock,
		"inUse":        s.InUse,
		"defect":       s.Defect,
		"available":    s.Available(),
		"averagePrice": s.AveragePrice,
	}
}
