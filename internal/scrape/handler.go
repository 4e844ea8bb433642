package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/smetacat/smetacat/internal/catalog"
	"github.com/smetacat/smetacat/internal/platform/httpx"
)

// Enqueuer hands a vendor scrape to the background worker.
type Enqueuer interface {
	EnqueueScrapeVendor(ctx context.Context, vendorID int64, materialIDs ...string) (string, error)
}

// Handler wires HTTP endpoints for vendor price scraping. When no enqueuer
// is configured the scrape runs inline, which keeps single-binary
// deployments working without a worker.
type Handler struct {
	logger   *slog.Logger
	runner   *Runner
	enqueuer Enqueuer
}

// NewHandler constructs a Handler instance. enqueuer may be nil.
func NewHandler(logger *slog.Logger, runner *Runner, enqueuer Enqueuer) *Handler {
	return &Handler{logger: logger, runner: runner, enqueuer: enqueuer}
}

// MountRoutes registers scraping routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/scrapes/vendors/{id}", h.scrapeVendor)
}

type scrapeRequest struct {
	MaterialIDs []string `json:"material_ids"`
}

type enqueuedResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

func (h *Handler) scrapeVendor(w http.ResponseWriter, r *http.Request) {
	vendorID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "vendor id must be an integer")
		return
	}

	var req scrapeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be JSON")
			return
		}
	}

	if h.enqueuer != nil {
		taskID, err := h.enqueuer.EnqueueScrapeVendor(r.Context(), vendorID, req.MaterialIDs...)
		if err != nil {
			h.logger.Error("enqueue vendor scrape", "vendor_id", vendorID, "error", err)
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "could not enqueue scrape")
			return
		}
		httpx.JSON(w, http.StatusAccepted, enqueuedResponse{TaskID: taskID, Status: "queued"})
		return
	}

	result, err := h.runner.ScrapeVendor(r.Context(), vendorID, req.MaterialIDs...)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "vendor not found")
	case errors.Is(err, ErrNoWebsite):
		httpx.Problem(w, http.StatusUnprocessableEntity, "No Website", "vendor has no website url")
	case err != nil:
		h.logger.Error("vendor scrape failed", "vendor_id", vendorID, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "scrape failed")
	default:
		httpx.JSON(w, http.StatusOK, result)
	}
}
