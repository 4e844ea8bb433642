package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smetacat/smetacat/internal/catalog"
	"github.com/smetacat/smetacat/internal/importer"
	"github.com/smetacat/smetacat/internal/observability"
	"github.com/smetacat/smetacat/internal/platform/httpx"
	"github.com/smetacat/smetacat/internal/pricing"
	"github.com/smetacat/smetacat/internal/scrape"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Metrics         *observability.Metrics
	CatalogHandler  *catalog.Handler
	PricingHandler  *pricing.Handler
	ImporterHandler *importer.Handler
	ScrapeHandler   *scrape.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}
	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(api)
		}
		if params.PricingHandler != nil {
			params.PricingHandler.MountRoutes(api)
		}
		if params.ImporterHandler != nil {
			params.ImporterHandler.MountRoutes(api)
		}
		if params.ScrapeHandler != nil {
			params.ScrapeHandler.MountRoutes(api)
		}
	})

	return r
}
