package invoicing

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stockline-erp/stockline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for invoices.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs invoicing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/archived", h.handleListArchived)
	r.Get("/{number}", h.handleGet)
	r.Patch("/{number}", h.handleUpdate)
	r.Put("/{number}/items", h.handleUpdateItems)
	r.Delete("/{number}", h.handleDelete)
	r.Get("/{number}/history", h.handleHistory)
	r.Get("/{number}/item-updates", h.handleItemUpdates)
}

type invoiceItemDTO struct {
	ProductID   int64   `json:"productId" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	BatchNumber string  `json:"batchNumber" validate:"required"`
	Quantity    int64   `json:"quantity" validate:"required,min=1"`
	Price       float64 `json:"price" validate:"min=0"`
	DiscountPct int64   `json:"discountPct" validate:"min=0,max=100"`
	TaxSlab     int64   `json:"taxSlab" validate:"min=0"`
}

type createInvoiceDTO struct {
	CustomerName  string           `json:"customerName" validate:"required"`
	CustomerPhone string           `json:"customerPhone"`
	Items         []invoiceItemDTO `json:"items" validate:"required,min=1,dive"`
	PromoCode     string           `json:"promoCode"`
	LoyaltyCoins  int64            `json:"loyaltyCoins" validate:"min=0"`
	Notes         string           `json:"notes"`
	PaymentMethod string           `json:"paymentMethod"`
	CreatedBy     string           `json:"createdBy"`
}

func itemsFromDTO(dtos []invoiceItemDTO) []Item {
	items := make([]Item, 0, len(dtos))
	for _, it := range dtos {
		items = append(items, Item{
			ProductID:   it.ProductID,
			Name:        it.Name,
			BatchNumber: it.BatchNumber,
			Quantity:    it.Quantity,
			Price:       decimal.NewFromFloat(it.Price),
			DiscountPct: it.DiscountPct,
			TaxSlab:     it.TaxSlab,
		})
	}
	return items
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var dto createInvoiceDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inv, err := h.service.Create(r.Context(), CreateInput{
		CustomerName:   dto.CustomerName,
		CustomerPhone:  dto.CustomerPhone,
		Items:          itemsFromDTO(dto.Items),
		PromoCode:      dto.PromoCode,
		LoyaltyCoins:   dto.LoyaltyCoins,
		Notes:          dto.Notes,
		PaymentMethod:  dto.PaymentMethod,
		CreatedBy:      dto.CreatedBy,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logger.Warn("invoice create failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	invoices, err := h.service.List(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (h *Handler) handleListArchived(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	archives, err := h.service.ListArchived(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"archived": archives})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Get(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type updateInvoiceDTO struct {
	CustomerName  *string `json:"customerName"`
	CustomerPhone *string `json:"customerPhone"`
	Notes         *string `json:"notes"`
	PaymentMethod *string `json:"paymentMethod"`
	UpdatedBy     string  `json:"updatedBy"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var dto updateInvoiceDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	inv, err := h.service.UpdateHeader(r.Context(), chi.URLParam(r, "number"), HeaderUpdate{
		CustomerName:  dto.CustomerName,
		CustomerPhone: dto.CustomerPhone,
		Notes:         dto.Notes,
		PaymentMethod: dto.PaymentMethod,
	}, dto.UpdatedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type updateItemsDTO struct {
	Items     []invoiceItemDTO `json:"items" validate:"required,min=1,dive"`
	UpdatedBy string           `json:"updatedBy"`
}

func (h *Handler) handleUpdateItems(w http.ResponseWriter, r *http.Request) {
	var dto updateItemsDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	number := chi.URLParam(r, "number")
	inv, err := h.service.UpdateItems(r.Context(), number, itemsFromDTO(dto.Items), dto.UpdatedBy)
	if err != nil {
		h.logger.Warn("invoice items update failed", slog.String("number", number), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handleItemUpdates(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ItemUpdateHistory(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"itemUpdates": records})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	deletedBy := r.Header.Get("X-Actor")
	arch, err := h.service.Delete(r.Context(), chi.URLParam(r, "number"), deletedBy)
	if err != nil {
		h.logger.Warn("invoice delete failed", slog.String("number", chi.URLParam(r, "number")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, arch)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.History(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": entries})
}
