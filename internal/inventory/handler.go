package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stockline-erp/stockline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the batch ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{productID}", h.handleGet)
	r.Post("/{productID}/batches", h.handleAddBatches)
}

type incomingBatchDTO struct {
	BatchNumber     string  `json:"batchNumber" validate:"required"`
	Quantity        int64   `json:"quantity" validate:"required,min=1"`
	ManufactureDate string  `json:"manufactureDate" validate:"required"`
	Rate            float64 `json:"rate" validate:"min=0"`
}

type addBatchesDTO struct {
	Batches []incomingBatchDTO `json:"batches" validate:"required,min=1,dive"`
}

type batchView struct {
	BatchNumber     string  `json:"batchNumber"`
	Quantity        int64   `json:"quantity"`
	ManufactureDate string  `json:"manufactureDate"`
	ExpiryDate      string  `json:"expiryDate"`
	Rate            float64 `json:"rate"`
}

type productView struct {
	ID            int64       `json:"id"`
	Name          string      `json:"name"`
	SKU           string      `json:"sku"`
	TotalQuantity int64       `json:"totalQuantity"`
	Batches       []batchView `json:"batches"`
}

func toProductView(p Product) productView {
	view := productView{ID: p.ID, Name: p.Name, SKU: p.SKU, TotalQuantity: p.TotalQuantity(), Batches: []batchView{}}
	for _, b := range p.Batches {
		rate, _ := b.Rate.Float64()
		view.Batches = append(view.Batches, batchView{
			BatchNumber:     b.BatchNumber,
			Quantity:        b.Quantity,
			ManufactureDate: b.ManufactureDate.Format("2006-01-02"),
			ExpiryDate:      b.ExpiryDate.Format("2006-01-02"),
			Rate:            rate,
		})
	}
	return view
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, toProductView(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": views})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	product, err := h.service.Get(r.Context(), productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductView(product))
}

func (h *Handler) handleAddBatches(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	var dto addBatchesDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	incoming := make([]IncomingBatch, 0, len(dto.Batches))
	for _, b := range dto.Batches {
		mfg, err := time.Parse("2006-01-02", b.ManufactureDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid manufacture date for batch "+b.BatchNumber)
			return
		}
		incoming = append(incoming, IncomingBatch{
			BatchNumber:     b.BatchNumber,
			Quantity:        b.Quantity,
			ManufactureDate: mfg,
			Rate:            decimal.NewFromFloat(b.Rate),
		})
	}
	product, err := h.service.AddBatches(r.Context(), productID, incoming)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductView(product))
}
