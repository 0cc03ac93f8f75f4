package workorders

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockline-erp/stockline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for BOMs and work orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs workorders handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers work order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/boms", h.handleListBOMs)
	r.Post("/boms", h.handleCreateBOM)
	r.Get("/boms/{bomID}", h.handleGetBOM)
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{number}", h.handleGet)
	r.Put("/{number}/lines", h.handleUpdateQuantities)
	r.Post("/{number}/sales", h.handleRecordSale)
	r.Delete("/{number}", h.handleDelete)
}

type bomComponentDTO struct {
	ItemID      int64  `json:"itemId" validate:"required"`
	ItemName    string `json:"itemName" validate:"required"`
	RequiredQty int64  `json:"requiredQty" validate:"required,min=1"`
}

type createBOMDTO struct {
	Name       string            `json:"name" validate:"required"`
	Components []bomComponentDTO `json:"components" validate:"required,min=1,dive"`
}

type workOrderLineDTO struct {
	BOMID    int64 `json:"bomId" validate:"required"`
	Quantity int64 `json:"quantity" validate:"required,min=1"`
}

type createWorkOrderDTO struct {
	Lines     []workOrderLineDTO `json:"lines" validate:"required,min=1,dive"`
	Notes     string             `json:"notes"`
	CreatedBy string             `json:"createdBy"`
}

type updateLinesDTO struct {
	Lines []workOrderLineDTO `json:"lines" validate:"required,min=1,dive"`
}

type recordSaleDTO struct {
	BOMID    int64 `json:"bomId" validate:"required"`
	Quantity int64 `json:"quantity" validate:"required,min=1"`
}

func toLineInputs(dtos []workOrderLineDTO) []LineInput {
	inputs := make([]LineInput, 0, len(dtos))
	for _, d := range dtos {
		inputs = append(inputs, LineInput{BOMID: d.BOMID, Quantity: d.Quantity})
	}
	return inputs
}

func (h *Handler) handleCreateBOM(w http.ResponseWriter, r *http.Request) {
	var dto createBOMDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	comps := make([]BOMComponent, 0, len(dto.Components))
	for _, c := range dto.Components {
		comps = append(comps, BOMComponent{ItemID: c.ItemID, ItemName: c.ItemName, RequiredQty: c.RequiredQty})
	}
	bom, err := h.service.CreateBOM(r.Context(), dto.Name, comps)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bomView(bom))
}

func (h *Handler) handleGetBOM(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "bomID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid bom id")
		return
	}
	bom, err := h.service.GetBOM(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bomView(bom))
}

func (h *Handler) handleListBOMs(w http.ResponseWriter, r *http.Request) {
	boms, err := h.service.ListBOMs(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(boms))
	for _, bom := range boms {
		views = append(views, bomView(bom))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"boms": views})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var dto createWorkOrderDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	wo, err := h.service.Create(r.Context(), CreateInput{
		Lines:     toLineInputs(dto.Lines),
		Notes:     dto.Notes,
		CreatedBy: dto.CreatedBy,
	})
	if err != nil {
		h.logger.Warn("work order create failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, workOrderView(wo))
}

func (h *Handler) handleUpdateQuantities(w http.ResponseWriter, r *http.Request) {
	var dto updateLinesDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	wo, err := h.service.UpdateQuantities(r.Context(), chi.URLParam(r, "number"), toLineInputs(dto.Lines))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, workOrderView(wo))
}

func (h *Handler) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var dto recordSaleDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	wo, err := h.service.RecordSale(r.Context(), chi.URLParam(r, "number"), dto.BOMID, dto.Quantity)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, workOrderView(wo))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get("X-Actor")
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "number"), actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	wo, err := h.service.Get(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, workOrderView(wo))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	orders, err := h.service.List(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(orders))
	for _, wo := range orders {
		views = append(views, workOrderView(wo))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"workOrders": views})
}

func bomView(bom BOM) map[string]any {
	return map[string]any{
		"id":         bom.ID,
		"name":       bom.Name,
		"components": bom.Components,
		"createdAt":  bom.CreatedAt,
	}
}

func workOrderView(wo WorkOrder) map[string]any {
	return map[string]any{
		"number":    wo.Number,
		"lines":     wo.Lines,
		"notes":     wo.Notes,
		"createdBy": wo.CreatedBy,
		"createdAt": wo.CreatedAt,
		"updatedAt": wo.UpdatedAt,
	}
}
