package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/smetacat/smetacat/internal/catalog"
	"github.com/smetacat/smetacat/internal/pricing"
	"github.com/smetacat/smetacat/internal/resolve"
)

// ResolverPort matches raw rows against the catalog.
type ResolverPort interface {
	Resolve(ctx context.Context, input resolve.Input) (catalog.Material, error)
}

// PricePort records sources and observations for imported rows.
type PricePort interface {
	CreateSource(ctx context.Context, input pricing.SourceInput) (int64, error)
	AppendPrice(ctx context.Context, materialID string, price float64, currency string, priceDate time.Time, sourceID int64) (int64, error)
}

// AliasPort registers raw spellings against their canonical material.
type AliasPort interface {
	AddAlias(ctx context.Context, materialID, aliasName string, customerID *int64, source catalog.AliasSource) error
}

// Metrics counts row outcomes per import run.
type Metrics interface {
	CountImportRows(outcome string, n int)
}

// Orchestrator drives one import run end to end: session bookkeeping, column
// detection, row-by-row matching and the unmatched queue.
type Orchestrator struct {
	repo     Repository
	resolver ResolverPort
	prices   PricePort
	aliases  AliasPort
	logger   *slog.Logger
	metrics  Metrics
}

func NewOrchestrator(repo Repository, resolver ResolverPort, prices PricePort, aliases AliasPort, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{repo: repo, resolver: resolver, prices: prices, aliases: aliases, logger: logger}
}

// WithMetrics attaches outcome counters to the orchestrator.
func (o *Orchestrator) WithMetrics(m Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// Options scope an import run to a customer or vendor and override the
// document date of the batch source.
type Options struct {
	CustomerID *int64
	VendorID   *int64
	DocDate    *time.Time
}

// ImportFile imports a CSV price list from disk.
func (o *Orchestrator) ImportFile(ctx context.Context, path string, opts Options) (Summary, error) {
	sessionID, err := o.repo.CreateSession(ctx, path, opts.CustomerID, opts.VendorID)
	if err != nil {
		return Summary{}, fmt.Errorf("importer: create session: %w", err)
	}

	reader, err := OpenCSV(path)
	if err != nil {
		o.failSession(ctx, sessionID, 0, 0)
		return Summary{SessionID: sessionID}, err
	}
	defer reader.Close()

	return o.run(ctx, sessionID, filepath.Base(path), reader, opts)
}

// ImportRows imports an already-parsed table, used by tests and by callers
// that read spreadsheets through their own tooling.
func (o *Orchestrator) ImportRows(ctx context.Context, sourceName string, headers []string, rows [][]string, opts Options) (Summary, error) {
	sessionID, err := o.repo.CreateSession(ctx, sourceName, opts.CustomerID, opts.VendorID)
	if err != nil {
		return Summary{}, fmt.Errorf("importer: create session: %w", err)
	}
	return o.run(ctx, sessionID, sourceName, newSliceReader(headers, rows), opts)
}

func (o *Orchestrator) run(ctx context.Context, sessionID int64, baseName string, reader RowReader, opts Options) (Summary, error) {
	summary := Summary{SessionID: sessionID}

	columns, err := DetectColumns(reader.Headers())
	if err != nil {
		o.failSession(ctx, sessionID, 0, 0)
		return summary, err
	}

	docDate := time.Now()
	if opts.DocDate != nil {
		docDate = *opts.DocDate
	}
	sourceID, err := o.prices.CreateSource(ctx, pricing.SourceInput{
		Type:       pricing.SourceTypeInvoice,
		Name:       "Import from " + baseName,
		CustomerID: opts.CustomerID,
		VendorID:   opts.VendorID,
		DocDate:    docDate,
	})
	if err != nil {
		o.failSession(ctx, sessionID, 0, 0)
		return summary, fmt.Errorf("importer: create source: %w", err)
	}
	summary.SourceID = sourceID

	for {
		cells, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed line, not a dead file. Count and keep going.
			summary.TotalRows++
			summary.Errors++
			o.logger.Warn("import row unreadable", "session_id", sessionID, "error", err)
			continue
		}
		summary.TotalRows++
		o.importRow(ctx, sessionID, sourceID, columns, cells, opts, docDate, &summary)
	}

	if err := o.repo.FinishSession(ctx, sessionID, SessionStatusCompleted, summary.Processed, summary.Errors); err != nil {
		return summary, fmt.Errorf("importer: finish session: %w", err)
	}
	if o.metrics != nil {
		o.metrics.CountImportRows("processed", summary.Processed)
		o.metrics.CountImportRows("error", summary.Errors)
		o.metrics.CountImportRows("unmatched", len(summary.Unmatched))
	}
	o.logger.Info("import completed",
		"session_id", sessionID,
		"source", baseName,
		"rows", summary.TotalRows,
		"processed", summary.Processed,
		"errors", summary.Errors,
		"unmatched", len(summary.Unmatched),
	)
	return summary, nil
}

// importRow handles a single data row. Any failure is recorded in the
// summary and never aborts the batch.
func (o *Orchestrator) importRow(ctx context.Context, sessionID, sourceID int64, columns ColumnMap, cells []string, opts Options, docDate time.Time, summary *Summary) {
	row := ExtractRow(columns, cells)
	if row.Name == "" {
		summary.Errors++
		return
	}
	if row.Price == nil {
		// No usable price observation for this row.
		summary.Errors++
		return
	}

	material, err := o.resolver.Resolve(ctx, resolve.Input{
		Name:       row.Name,
		Unit:       row.Unit,
		Article:    row.Article,
		CustomerID: opts.CustomerID,
	})
	if errors.Is(err, resolve.ErrNoMatch) {
		if _, err := o.repo.AddUnmatched(ctx, UnmatchedImport{
			SessionID:  sessionID,
			RawName:    row.Name,
			RawPrice:   row.Price,
			RawUnit:    row.Unit,
			RawArticle: row.Article,
		}); err != nil {
			summary.Errors++
			o.logger.Error("record unmatched row", "session_id", sessionID, "name", row.Name, "error", err)
			return
		}
		summary.Unmatched = append(summary.Unmatched, row)
		return
	}
	if err != nil {
		summary.Errors++
		o.logger.Error("resolve import row", "session_id", sessionID, "name", row.Name, "error", err)
		return
	}

	if _, err := o.prices.AppendPrice(ctx, material.ID, *row.Price, "", docDate, sourceID); err != nil {
		summary.Errors++
		o.logger.Error("append imported price", "session_id", sessionID, "material_id", material.ID, "error", err)
		return
	}

	if alias := resolve.Normalize(row.Name); alias != material.NameCanonical {
		if err := o.aliases.AddAlias(ctx, material.ID, alias, opts.CustomerID, catalog.AliasSourceImport); err != nil {
			o.logger.Warn("register import alias", "material_id", material.ID, "alias", alias, "error", err)
		}
	}
	summary.Processed++
}

func (o *Orchestrator) failSession(ctx context.Context, sessionID int64, processed, errorRows int) {
	if err := o.repo.FinishSession(ctx, sessionID, SessionStatusFailed, processed, errorRows); err != nil {
		o.logger.Error("mark session failed", "session_id", sessionID, "error", err)
	}
}

// Session returns an import session together with its still-pending rows.
func (o *Orchestrator) Session(ctx context.Context, id int64) (ImportSession, []UnmatchedImport, error) {
	session, err := o.repo.GetSession(ctx, id)
	if err != nil {
		return ImportSession{}, nil, err
	}
	pending, err := o.repo.ListUnmatched(ctx, id, ResolutionPending)
	if err != nil {
		return ImportSession{}, nil, err
	}
	return session, pending, nil
}

// PendingUnmatched lists pending rows across all sessions.
func (o *Orchestrator) PendingUnmatched(ctx context.Context) ([]UnmatchedImport, error) {
	return o.repo.ListUnmatched(ctx, 0, ResolutionPending)
}
