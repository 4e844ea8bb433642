package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/smetacat/smetacat/internal/jobs"
	"github.com/smetacat/smetacat/internal/scrape"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskScrapeVendor refreshes website prices for one vendor.
	TaskScrapeVendor = "scrape:vendor"
)

// ScrapeVendorPayload identifies the vendor whose site is scraped. When
// MaterialIDs is empty the run covers every material assigned to the vendor.
type ScrapeVendorPayload struct {
	VendorID    int64    `json:"vendor_id"`
	MaterialIDs []string `json:"material_ids,omitempty"`
}

// NewScrapeVendorTask constructs an Asynq task.
func NewScrapeVendorTask(payload ScrapeVendorPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskScrapeVendor, data), nil
}

// ScrapeVendorJob executes vendor scrape tasks on the worker.
type ScrapeVendorJob struct {
	Runner  *scrape.Runner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewScrapeVendorJob initialises the scrape handler.
func NewScrapeVendorJob(runner *scrape.Runner, logger *slog.Logger, metrics *jobmetrics.Metrics) *ScrapeVendorJob {
	return &ScrapeVendorJob{Runner: runner, Logger: logger, Metrics: metrics}
}

// Handle processes TaskScrapeVendor tasks.
func (j *ScrapeVendorJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Runner == nil {
		return errors.New("scrape vendor: handler not configured")
	}
	var payload ScrapeVendorPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.VendorID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskScrapeVendor)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	started := time.Now()
	result, err := j.Runner.ScrapeVendor(ctx, payload.VendorID, payload.MaterialIDs...)
	if err != nil {
		if errors.Is(err, scrape.ErrNoWebsite) {
			j.Logger.Warn("vendor not scrapable", slog.Int64("vendor_id", payload.VendorID))
			return asynq.SkipRetry
		}
		j.Logger.Error("vendor scrape task failed",
			slog.Int64("vendor_id", payload.VendorID),
			slog.Any("error", err),
		)
		return err
	}
	j.Logger.Info("vendor scrape task finished",
		slog.Int64("vendor_id", payload.VendorID),
		slog.Int("scraped", result.Scraped),
		slog.Int("not_found", result.NotFound),
		slog.Int("failed", result.Failed),
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}
