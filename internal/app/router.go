package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stockline-erp/stockline/internal/components"
	"github.com/stockline-erp/stockline/internal/counter"
	"github.com/stockline-erp/stockline/internal/disposal"
	"github.com/stockline-erp/stockline/internal/inventory"
	"github.com/stockline-erp/stockline/internal/invoicing"
	"github.com/stockline-erp/stockline/internal/procurement"
	"github.com/stockline-erp/stockline/internal/sales"
	"github.com/stockline-erp/stockline/internal/workorders"
	"github.com/stockline-erp/stockline/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	CounterHandler     *counter.Handler
	ComponentHandler   *components.Handler
	InventoryHandler   *inventory.Handler
	DisposalHandler    *disposal.Handler
	InvoiceHandler     *invoicing.Handler
	ProcurementHandler *procurement.Handler
	WorkOrderHandler   *workorders.Handler
	SalesHandler       *sales.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with Stockline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		if params.CounterHandler != nil {
			r.Route("/counters", params.CounterHandler.MountRoutes)
		}
		if params.ComponentHandler != nil {
			r.Route("/components", params.ComponentHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.DisposalHandler != nil {
			r.Route("/disposals", params.DisposalHandler.MountRoutes)
		}
		if params.InvoiceHandler != nil {
			r.Route("/invoices", params.InvoiceHandler.MountRoutes)
		}
		if params.ProcurementHandler != nil {
			r.Route("/procurement", params.ProcurementHandler.MountRoutes)
		}
		if params.WorkOrderHandler != nil {
			r.Route("/workorders", params.WorkOrderHandler.MountRoutes)
		}
		if params.SalesHandler != nil {
			r.Route("/sales", params.SalesHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
