package sales

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockline-erp/stockline/internal/platform/httpx"
	"github.com/stockline-erp/stockline/internal/shared"
)

// Handler wires HTTP endpoints for promo codes and loyalty.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers promo and loyalty routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/promos", h.handleListPromos)
	r.Post("/promos", h.handleCreatePromo)
	r.Get("/promos/{code}/validate", h.handleValidatePromo)
	r.Put("/promos/{code}", h.handleUpdatePromo)
	r.Post("/promos/{code}/deactivate", h.handleDeactivatePromo)
	r.Delete("/promos/{code}", h.handleDeletePromo)
	r.Get("/customers", h.handleListCustomers)
	r.Post("/customers", h.handleSaveCustomer)
	r.Get("/customers/{phone}", h.handleGetCustomer)
	r.Post("/customers/{phone}/coins/earn", h.handleEarn)
	r.Post("/customers/{phone}/coins/apply", h.handleApply)
}

type promoDTO struct {
	Code     string `json:"code" validate:"required"`
	Discount int64  `json:"discount" validate:"required,min=1,max=100"`
	EndDate  string `json:"endDate" validate:"required"`
}

type updatePromoDTO struct {
	Discount int64  `json:"discount" validate:"required,min=1,max=100"`
	EndDate  string `json:"endDate" validate:"required"`
}

type saveCustomerDTO struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone" validate:"required"`
}

type earnDTO struct {
	BaseValue int64  `json:"baseValue" validate:"required,min=1"`
	Channel   string `json:"channel" validate:"required,oneof=sales invoice"`
}

type applyDTO struct {
	Deduct int64 `json:"deduct" validate:"min=0"`
	Add    int64 `json:"add" validate:"min=0"`
}

func parseEndDate(raw string) (time.Time, bool) {
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func (h *Handler) handleCreatePromo(w http.ResponseWriter, r *http.Request) {
	var dto promoDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	endDate, ok := parseEndDate(dto.EndDate)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "endDate must be YYYY-MM-DD")
		return
	}
	p, err := h.service.CreatePromo(r.Context(), dto.Code, dto.Discount, endDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, promoView(p))
}

func (h *Handler) handleUpdatePromo(w http.ResponseWriter, r *http.Request) {
	var dto updatePromoDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	endDate, ok := parseEndDate(dto.EndDate)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "endDate must be YYYY-MM-DD")
		return
	}
	p, err := h.service.UpdatePromo(r.Context(), chi.URLParam(r, "code"), dto.Discount, endDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, promoView(p))
}

func (h *Handler) handleDeactivatePromo(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.DeactivatePromo(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, promoView(p))
}

func (h *Handler) handleDeletePromo(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePromo(r.Context(), chi.URLParam(r, "code")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleValidatePromo(w http.ResponseWriter, r *http.Request) {
	discount, err := h.service.ValidateCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"discount": discount})
}

func (h *Handler) handleListPromos(w http.ResponseWriter, r *http.Request) {
	promos, err := h.service.ListPromos(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(promos))
	for _, p := range promos {
		views = append(views, promoView(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"promos": views})
}

func (h *Handler) handleSaveCustomer(w http.ResponseWriter, r *http.Request) {
	var dto saveCustomerDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	c, err := h.service.SaveCustomer(r.Context(), dto.Name, dto.Phone)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customerView(c))
}

func (h *Handler) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCustomer(r.Context(), chi.URLParam(r, "phone"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customerView(c))
}

func (h *Handler) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.ListCustomers(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	pg := shared.NewPagination(page, perPage, len(customers))
	start := min(pg.Offset(), len(customers))
	end := min(start+pg.PerPage, len(customers))
	views := make([]map[string]any, 0, end-start)
	for _, c := range customers[start:end] {
		views = append(views, customerView(c))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customers": views, "pagination": pg})
}

func (h *Handler) handleEarn(w http.ResponseWriter, r *http.Request) {
	var dto earnDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	balance, err := h.service.Earn(r.Context(), chi.URLParam(r, "phone"), dto.BaseValue, dto.Channel)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"coins": balance})
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	var dto applyDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	balance, err := h.service.Apply(r.Context(), chi.URLParam(r, "phone"), dto.Deduct, dto.Add)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"coins": balance})
}

func promoView(p PromoCode) map[string]any {
	return map[string]any{
		"code":      p.Code,
		"discount":  p.Discount,
		"endDate":   p.EndDate,
		"isActive":  p.IsActive,
		"isExpired": p.IsExpired,
	}
}

func customerView(c Customer) map[string]any {
	return map[string]any{
		"name":  c.Name,
		"phone": c.Phone,
		"coins": c.Coins,
	}
}
