package procurement

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stockline-erp/stockline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for purchase orders and goods receipts.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.handleListPOs)
	r.Post("/orders", h.handleCreatePO)
	r.Get("/orders/{number}", h.handleGetPO)
	r.Put("/orders/{number}", h.handleUpdatePO)
	r.Post("/orders/{number}/close", h.handleClosePO)
	r.Delete("/orders/{number}", h.handleDeletePO)
	r.Get("/receipts", h.handleListGRNs)
	r.Post("/receipts", h.handleCreateGRN)
	r.Get("/receipts/{number}", h.handleGetGRN)
	r.Delete("/receipts/{number}", h.handleDeleteGRN)
}

type orderLineDTO struct {
	ItemID   int64   `json:"itemId" validate:"required"`
	ItemName string  `json:"itemName" validate:"required"`
	Quantity int64   `json:"quantity" validate:"required,min=1"`
	Rate     float64 `json:"rate" validate:"min=0"`
}

type createPODTO struct {
	VendorName string         `json:"vendorName" validate:"required"`
	Lines      []orderLineDTO `json:"lines" validate:"required,min=1,dive"`
	Notes      string         `json:"notes"`
	CreatedBy  string         `json:"createdBy"`
}

type updatePODTO struct {
	VendorName string         `json:"vendorName" validate:"required"`
	Lines      []orderLineDTO `json:"lines" validate:"required,min=1,dive"`
	Notes      string         `json:"notes"`
}

type createGRNDTO struct {
	PONumber   string         `json:"poNumber" validate:"required"`
	Lines      []orderLineDTO `json:"lines" validate:"required,min=1,dive"`
	ReceivedBy string         `json:"receivedBy"`
}

func toLines(dtos []orderLineDTO) []OrderLine {
	lines := make([]OrderLine, 0, len(dtos))
	for _, d := range dtos {
		lines = append(lines, OrderLine{
			ItemID:   d.ItemID,
			ItemName: d.ItemName,
			Quantity: d.Quantity,
			Rate:     decimal.NewFromFloat(d.Rate),
		})
	}
	return lines
}

func (h *Handler) handleCreatePO(w http.ResponseWriter, r *http.Request) {
	var dto createPODTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	po, err := h.service.CreatePO(r.Context(), CreatePOInput{
		VendorName: dto.VendorName,
		Lines:      toLines(dto.Lines),
		Notes:      dto.Notes,
		CreatedBy:  dto.CreatedBy,
	})
	if err != nil {
		h.logger.Warn("purchase order create failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, poView(po))
}

func (h *Handler) handleUpdatePO(w http.ResponseWriter, r *http.Request) {
	var dto updatePODTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	po, err := h.service.UpdatePO(r.Context(), chi.URLParam(r, "number"), UpdatePOInput{
		VendorName: dto.VendorName,
		Lines:      toLines(dto.Lines),
		Notes:      dto.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, poView(po))
}

func (h *Handler) handleClosePO(w http.ResponseWriter, r *http.Request) {
	po, err := h.service.ClosePO(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, poView(po))
}

func (h *Handler) handleDeletePO(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get("X-Actor")
	if err := h.service.DeletePO(r.Context(), chi.URLParam(r, "number"), actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetPO(w http.ResponseWriter, r *http.Request) {
	po, err := h.service.GetPO(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, poView(po))
}

func (h *Handler) handleListPOs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	orders, err := h.service.ListPOs(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(orders))
	for _, po := range orders {
		views = append(views, poView(po))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": views})
}

func (h *Handler) handleCreateGRN(w http.ResponseWriter, r *http.Request) {
	var dto createGRNDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	grn, err := h.service.CreateGRN(r.Context(), CreateGRNInput{
		PONumber:   dto.PONumber,
		Lines:      toLines(dto.Lines),
		ReceivedBy: dto.ReceivedBy,
	})
	if err != nil {
		h.logger.Warn("goods receipt create failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grnView(grn))
}

func (h *Handler) handleDeleteGRN(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get("X-Actor")
	if err := h.service.DeleteGRN(r.Context(), chi.URLParam(r, "number"), actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetGRN(w http.ResponseWriter, r *http.Request) {
	grn, err := h.service.GetGRN(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grnView(grn))
}

func (h *Handler) handleListGRNs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	receipts, err := h.service.ListGRNs(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(receipts))
	for _, grn := range receipts {
		views = append(views, grnView(grn))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"receipts": views})
}

func lineViews(lines []OrderLine) []map[string]any {
	views := make([]map[string]any, 0, len(lines))
	for _, l := range lines {
		views = append(views, map[string]any{
			"itemId":   l.ItemID,
			"itemName": l.ItemName,
			"quantity": l.Quantity,
			"rate":     l.Rate,
		})
	}
	return views
}

func poView(po PurchaseOrder) map[string]any {
	return map[string]any{
		"number":     po.Number,
		"vendorName": po.VendorName,
		"lines":      lineViews(po.Lines),
		"status":     po.Status,
		"notes":      po.Notes,
		"createdBy":  po.CreatedBy,
		"createdAt":  po.CreatedAt,
		"updatedAt":  po.UpdatedAt,
	}
}

func grnView(grn GoodsReceipt) map[string]any {
	return map[string]any{
		"number":     grn.Number,
		"poNumber":   grn.PONumber,
		"lines":      lineViews(grn.Lines),
		"receivedBy": grn.ReceivedBy,
		"createdAt":  grn.CreatedAt,
	}
}
