package disposal

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockline-erp/stockline/internal/inventory"
	"github.com/stockline-erp/stockline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for disposals and defect tracking.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	cleaner  *Cleaner
	validate *validator.Validate
}

// NewHandler constructs disposal handler.
func NewHandler(logger *slog.Logger, service *Service, cleaner *Cleaner) *Handler {
	return &Handler{logger: logger, service: service, cleaner: cleaner, validate: validator.New()}
}

// MountRoutes registers disposal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/summary", h.handleSummary)
	r.Post("/dispose", h.handleDispose)
	r.Post("/cleanup", h.handleCleanup)
	r.Get("/defectives", h.handleListDefectives)
	r.Post("/defectives", h.handleRecordDefective)
	r.Get("/defectives/{id}/restores", h.handleListRestores)
	r.Post("/defectives/{id}/restore", h.handleRestore)
	r.Delete("/defectives/{id}", h.handleDeleteDefective)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Type: Type(q.Get("type"))}
	if v := q.Get("productId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
			return
		}
		filter.ProductID = id
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = t
	}
	records, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list disposals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"disposals": records})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cleaner.Run(r.Context())
	if err != nil {
		h.logger.Error("manual cleanup", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

type disposeBatchDTO struct {
	BatchNumber string `json:"batchNumber" validate:"required"`
	Quantity    int64  `json:"quantity" validate:"required,min=1"`
}

type disposeDTO struct {
	ProductID  int64             `json:"productId" validate:"required"`
	Type       string            `json:"type" validate:"required,oneof=defective expired"`
	Batches    []disposeBatchDTO `json:"batches" validate:"required,min=1,dive"`
	Reason     string            `json:"reason"`
	DisposedBy string            `json:"disposedBy" validate:"required"`
}

func (h *Handler) handleDispose(w http.ResponseWriter, r *http.Request) {
	var dto disposeDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	selections := make([]inventory.BatchSelection, 0, len(dto.Batches))
	for _, b := range dto.Batches {
		selections = append(selections, inventory.BatchSelection{BatchNumber: b.BatchNumber, Quantity: b.Quantity})
	}
	rec, err := h.service.Dispose(r.Context(), dto.ProductID, Type(dto.Type), selections, dto.Reason, dto.DisposedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

type recordDefectiveDTO struct {
	ItemID     int64  `json:"itemId" validate:"required"`
	Quantity   int64  `json:"quantity" validate:"required,min=1"`
	Reason     string `json:"reason" validate:"required"`
	ReportedBy string `json:"reportedBy" validate:"required"`
}

func (h *Handler) handleRecordDefective(w http.ResponseWriter, r *http.Request) {
	var dto recordDefectiveDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rec, err := h.service.RecordDefective(r.Context(), dto.ItemID, dto.Quantity, dto.Reason, dto.ReportedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleListDefectives(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListDefectives(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"defectives": records})
}

type restoreDTO struct {
	Quantity   int64  `json:"quantity" validate:"required,min=1"`
	RestoredBy string `json:"restoredBy" validate:"required"`
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid defective id")
		return
	}
	var dto restoreDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rec, err := h.service.RestoreDefective(r.Context(), id, dto.Quantity, dto.RestoredBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleListRestores(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid defective id")
		return
	}
	records, err := h.service.ListRestores(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"restores": records})
}

func (h *Handler) handleDeleteDefective(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid defective id")
		return
	}
	actor := r.Header.Get("X-Actor")
	if err := h.service.DeleteDefective(r.Context(), id, actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
