package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/smetacat/smetacat/internal/pricing"
	"github.com/smetacat/smetacat/internal/resolve"
)

// Estimate sheet headers, matched verbatim.
const (
	fillColMaterial = "Материал"
	fillColUnit     = "Единица измерения"
	fillColPrice    = "Цена материала, за единицу"
	fillColLabor    = "Стоимость работ, за единицу"
	fillColStatus   = "Статус заполнения"
)

// Fill statuses written into the status column.
const (
	FillStatusLocal    = "Заполнено (локальный)"
	FillStatusCatalog  = "Заполнено (справочник)"
	FillStatusNotFound = "Не найдено"
	FillStatusNoData   = "Нет данных"
)

// SelectorPort picks the current price for a material.
type SelectorPort interface {
	SelectPrice(ctx context.Context, materialID string, asOf *time.Time, customerID *int64) (pricing.Observation, error)
}

// Filler completes price and labor columns in an estimate sheet. Rows that
// already carry full data act as a local dictionary for the rest of the
// sheet, so a line priced once by hand fills its duplicates before the
// catalog is consulted.
type Filler struct {
	resolver ResolverPort
	selector SelectorPort
	logger   *slog.Logger
}

func NewFiller(resolver ResolverPort, selector SelectorPort, logger *slog.Logger) *Filler {
	return &Filler{resolver: resolver, selector: selector, logger: logger}
}

// maxMissingSample caps how many unresolved rows a report carries.
const maxMissingSample = 5

// FillReport summarizes one fill run. Missing holds up to
// maxMissingSample rows the catalog could not price, in sheet order.
type FillReport struct {
	OutputPath        string       `json:"output_path,omitempty"`
	TotalRows         int          `json:"total_rows"`
	FilledLocal       int          `json:"filled_local"`
	FilledFromCatalog int          `json:"filled_from_catalog"`
	NotFound          int          `json:"not_found"`
	NoData            int          `json:"no_data"`
	Missing           []MissingRow `json:"missing,omitempty"`
}

// MissingRow identifies an estimate row left without a price.
type MissingRow struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

type fillEntry struct {
	price string
	labor string
}

// FillFile reads an estimate CSV, fills missing prices and writes a
// sibling file with a _filled suffix.
func (f *Filler) FillFile(ctx context.Context, path string) (FillReport, error) {
	in, err := os.Open(path)
	if err != nil {
		return FillReport{}, fmt.Errorf("open estimate: %w", err)
	}
	defer in.Close()

	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return FillReport{}, fmt.Errorf("read estimate: %w", err)
	}
	if len(records) == 0 {
		return FillReport{}, fmt.Errorf("estimate %s is empty", path)
	}

	headers, rows, report, err := f.fill(ctx, records[0], records[1:])
	if err != nil {
		return FillReport{}, err
	}

	ext := filepath.Ext(path)
	outPath := strings.TrimSuffix(path, ext) + "_filled" + ext
	out, err := os.Create(outPath)
	if err != nil {
		return FillReport{}, fmt.Errorf("create filled estimate: %w", err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(headers); err != nil {
		return FillReport{}, err
	}
	if err := w.WriteAll(rows); err != nil {
		return FillReport{}, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return FillReport{}, err
	}
	report.OutputPath = outPath
	return report, nil
}

// FillTable fills an in-memory estimate table and returns the completed
// headers and rows alongside the report.
func (f *Filler) FillTable(ctx context.Context, headers []string, rows [][]string) ([]string, [][]string, FillReport, error) {
	return f.fill(ctx, headers, rows)
}

func (f *Filler) fill(ctx context.Context, headers []string, rows [][]string) ([]string, [][]string, FillReport, error) {
	idx := map[string]int{}
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	matCol, ok := idx[fillColMaterial]
	if !ok {
		return nil, nil, FillReport{}, fmt.Errorf("estimate is missing the %q column", fillColMaterial)
	}
	unitCol, ok := idx[fillColUnit]
	if !ok {
		return nil, nil, FillReport{}, fmt.Errorf("estimate is missing the %q column", fillColUnit)
	}

	headers = append([]string(nil), headers...)
	priceCol := ensureColumn(&headers, idx, fillColPrice)
	laborCol := ensureColumn(&headers, idx, fillColLabor)
	statusCol := ensureColumn(&headers, idx, fillColStatus)

	width := len(headers)
	padded := make([][]string, len(rows))
	for i, row := range rows {
		p := make([]string, width)
		copy(p, row)
		padded[i] = p
	}

	// First pass: rows priced by hand become the local dictionary.
	local := map[string]fillEntry{}
	for _, row := range padded {
		name, unit := strings.TrimSpace(row[matCol]), strings.TrimSpace(row[unitCol])
		price, labor := strings.TrimSpace(row[priceCol]), strings.TrimSpace(row[laborCol])
		if name == "" || unit == "" || price == "" || labor == "" {
			continue
		}
		key := localKey(name, unit)
		if _, exists := local[key]; !exists {
			local[key] = fillEntry{price: price, labor: labor}
		}
	}

	var report FillReport
	report.TotalRows = len(padded)
	for _, row := range padded {
		name, unit := strings.TrimSpace(row[matCol]), strings.TrimSpace(row[unitCol])
		if name == "" || unit == "" {
			row[statusCol] = FillStatusNoData
			report.NoData++
			continue
		}
		if strings.TrimSpace(row[priceCol]) != "" && strings.TrimSpace(row[laborCol]) != "" {
			row[statusCol] = FillStatusLocal
			report.FilledLocal++
			continue
		}
		if entry, ok := local[localKey(name, unit)]; ok {
			fillRow(row, priceCol, laborCol, entry)
			row[statusCol] = FillStatusLocal
			report.FilledLocal++
			continue
		}

		entry, err := f.lookupCatalog(ctx, name, unit)
		if err != nil {
			row[statusCol] = FillStatusNotFound
			report.NotFound++
			if len(report.Missing) < maxMissingSample {
				report.Missing = append(report.Missing, MissingRow{Name: name, Unit: unit})
			}
			continue
		}
		fillRow(row, priceCol, laborCol, entry)
		row[statusCol] = FillStatusCatalog
		report.FilledFromCatalog++
	}
	return headers, padded, report, nil
}

func (f *Filler) lookupCatalog(ctx context.Context, name, unit string) (fillEntry, error) {
	material, err := f.resolver.Resolve(ctx, resolve.Input{Name: name, Unit: unit})
	if err != nil {
		return fillEntry{}, err
	}
	obs, err := f.selector.SelectPrice(ctx, material.ID, nil, nil)
	if err != nil {
		return fillEntry{}, err
	}
	return fillEntry{
		price: formatAmount(obs.Price),
		labor: formatAmount(material.WorkRate),
	}, nil
}

func ensureColumn(headers *[]string, idx map[string]int, name string) int {
	if col, ok := idx[name]; ok {
		return col
	}
	*headers = append(*headers, name)
	col := len(*headers) - 1
	idx[name] = col
	return col
}

func fillRow(row []string, priceCol, laborCol int, entry fillEntry) {
	if strings.TrimSpace(row[priceCol]) == "" {
		row[priceCol] = entry.price
	}
	if strings.TrimSpace(row[laborCol]) == "" {
		row[laborCol] = entry.labor
	}
}

func localKey(name, unit string) string {
	return resolve.Normalize(name) + "|" + strings.ToLower(unit)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
