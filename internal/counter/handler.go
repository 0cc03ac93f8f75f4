package counter

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stockline-erp/stockline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for counter inspection.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs counter handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers counter routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{series}/preview", h.handlePreview)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	counters, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list counters", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"counters": counters})
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	series := chi.URLParam(r, "series")
	number, err := h.service.PreviewNext(r.Context(), series)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"series": series, "next": number})
}
