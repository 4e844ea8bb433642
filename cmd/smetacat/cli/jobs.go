package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/smetacat/smetacat/jobs"
)

// JobsCLI wraps manual management helpers for background jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{
		client:    asynq.NewClient(opts),
		inspector: asynq.NewInspector(opts),
	}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Run parses scrape-prices flags, enqueues the task and reports queue state.
func (c *JobsCLI) Run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("scrape-prices", flag.ContinueOnError)
	vendorID := fs.Int64("vendor", 0, "vendor id to scrape")
	materials := fs.String("materials", "", "comma-separated material ids, defaults to all assigned")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *vendorID <= 0 {
		return errors.New("scrape-prices: -vendor is required")
	}

	payload := jobs.ScrapeVendorPayload{VendorID: *vendorID}
	for _, id := range strings.Split(*materials, ",") {
		if id = strings.TrimSpace(id); id != "" {
			payload.MaterialIDs = append(payload.MaterialIDs, id)
		}
	}

	task, err := jobs.NewScrapeVendorTask(payload)
	if err != nil {
		return err
	}
	info, err := c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "enqueued %s as %s\n", info.Type, info.ID)

	queue, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err == nil && queue != nil {
		fmt.Fprintf(out, "queue %s: %d pending, %d active\n", queue.Queue, queue.Pending, queue.Active)
	}
	return nil
}
