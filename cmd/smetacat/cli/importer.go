package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smetacat/smetacat/internal/catalog"
	"github.com/smetacat/smetacat/internal/importer"
	"github.com/smetacat/smetacat/internal/pricing"
	"github.com/smetacat/smetacat/internal/resolve"
)

// ImportCLI wraps price-list import and estimate-fill commands.
type ImportCLI struct {
	orchestrator *importer.Orchestrator
	filler       *importer.Filler
}

// NewImportCLI initialises the import helpers over a database pool.
func NewImportCLI(pool *pgxpool.Pool, logger *slog.Logger) *ImportCLI {
	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo)
	pricingService := pricing.NewService(pricing.NewRepository(pool), catalogRepo, nil)
	resolver := resolve.NewResolver(catalogRepo)
	return &ImportCLI{
		orchestrator: importer.NewOrchestrator(importer.NewRepository(pool), resolver, pricingService, catalogService, logger),
		filler:       importer.NewFiller(resolver, pricingService, logger),
	}
}

// ImportPrices imports a CSV price list and prints the run summary.
func (c *ImportCLI) ImportPrices(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import-prices", flag.ContinueOnError)
	path := fs.String("file", "", "path to the CSV price list")
	customerID := fs.Int64("customer", 0, "customer scope for aliases and the source")
	vendorID := fs.Int64("vendor", 0, "vendor the prices come from")
	docDate := fs.String("date", "", "document date as YYYY-MM-DD, defaults to today")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("import-prices: -file is required")
	}

	opts := importer.Options{}
	if *customerID > 0 {
		opts.CustomerID = customerID
	}
	if *vendorID > 0 {
		opts.VendorID = vendorID
	}
	if *docDate != "" {
		parsed, err := time.Parse("2006-01-02", *docDate)
		if err != nil {
			return fmt.Errorf("import-prices: invalid -date: %w", err)
		}
		opts.DocDate = &parsed
	}

	summary, err := c.orchestrator.ImportFile(ctx, *path, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "session %d: %d rows, %d processed, %d errors, %d unmatched\n",
		summary.SessionID, summary.TotalRows, summary.Processed, summary.Errors, len(summary.Unmatched))
	for _, row := range summary.Unmatched {
		if row.Price != nil {
			fmt.Fprintf(out, "  unmatched: %s (%s) %.2f\n", row.Name, row.Unit, *row.Price)
		} else {
			fmt.Fprintf(out, "  unmatched: %s (%s)\n", row.Name, row.Unit)
		}
	}
	return nil
}

// FillEstimate fills prices in an estimate CSV and prints the report.
func (c *ImportCLI) FillEstimate(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("fill-estimate", flag.ContinueOnError)
	path := fs.String("file", "", "path to the estimate CSV")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("fill-estimate: -file is required")
	}

	report, err := c.filler.FillFile(ctx, *path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d rows: %d local, %d from catalog, %d not found, %d without data\n",
		report.TotalRows, report.FilledLocal, report.FilledFromCatalog, report.NotFound, report.NoData)
	for _, row := range report.Missing {
		fmt.Fprintf(out, "  not found: %s (%s)\n", row.Name, row.Unit)
	}
	fmt.Fprintf(out, "written to %s\n", report.OutputPath)
	return nil
}

// ImportResults prints one session's counters and its unmatched rows.
func (c *ImportCLI) ImportResults(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import-results", flag.ContinueOnError)
	sessionID := fs.Int64("session", 0, "import session id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sessionID <= 0 {
		return fmt.Errorf("import-results: -session is required")
	}

	session, unmatched, err := c.orchestrator.Session(ctx, *sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session %d (%s): %s, %d processed, %d errors\n",
		session.ID, session.SourceFile, session.Status, session.ProcessedRows, session.ErrorRows)
	for _, row := range unmatched {
		if row.RawPrice != nil {
			fmt.Fprintf(out, "  %d\t%s\t%s (%s)\t%.2f\n", row.ID, row.Status, row.RawName, row.RawUnit, *row.RawPrice)
		} else {
			fmt.Fprintf(out, "  %d\t%s\t%s (%s)\n", row.ID, row.Status, row.RawName, row.RawUnit)
		}
	}
	return nil
}

// ListUnmatched prints pending unmatched rows across all sessions.
func (c *ImportCLI) ListUnmatched(ctx context.Context, out io.Writer) error {
	pending, err := c.orchestrator.PendingUnmatched(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "no pending unmatched rows")
		return nil
	}
	for _, row := range pending {
		if row.RawPrice != nil {
			fmt.Fprintf(out, "%d\tsession %d\t%s (%s)\t%.2f\n", row.ID, row.SessionID, row.RawName, row.RawUnit, *row.RawPrice)
		} else {
			fmt.Fprintf(out, "%d\tsession %d\t%s (%s)\n", row.ID, row.SessionID, row.RawName, row.RawUnit)
		}
	}
	return nil
}
