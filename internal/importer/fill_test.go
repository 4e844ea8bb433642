package importer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smetacat/smetacat/internal/catalog"
	"github.com/smetacat/smetacat/internal/pricing"
	"github.com/smetacat/smetacat/internal/resolve"
)

type fakeSelector struct {
	prices map[string]float64
}

func (f *fakeSelector) SelectPrice(_ context.Context, materialID string, _ *time.Time, _ *int64) (pricing.Observation, error) {
	price, ok := f.prices[materialID]
	if !ok {
		return pricing.Observation{}, pricing.ErrNoPrice
	}
	obs := pricing.Observation{}
	obs.MaterialID = materialID
	obs.Price = price
	return obs, nil
}

func newFiller(store *memoryCatalog, prices map[string]float64) *Filler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFiller(resolve.NewResolver(store), &fakeSelector{prices: prices}, logger)
}

var estimateHeaders = []string{
	"№", "Материал", "Единица измерения",
	"Цена материала, за единицу", "Стоимость работ, за единицу",
}

func TestFillLocalRowsFirst(t *testing.T) {
	store := &memoryCatalog{}
	filler := newFiller(store, nil)

	rows := [][]string{
		{"1", "Кирпич красный", "шт", "25", "10"},
		{"2", "Кирпич красный", "шт", "", ""},
	}
	headers, filled, report, err := filler.FillTable(context.Background(), estimateHeaders, rows)
	require.NoError(t, err)
	require.Equal(t, fillColStatus, headers[len(headers)-1])

	require.Equal(t, 2, report.FilledLocal)
	require.Equal(t, 0, report.FilledFromCatalog)
	require.Equal(t, "25", filled[1][3])
	require.Equal(t, "10", filled[1][4])
	require.Equal(t, FillStatusLocal, filled[1][5])
}

func TestFillFromCatalog(t *testing.T) {
	mat := cement()
	store := &memoryCatalog{materials: []catalog.Material{mat}}
	filler := newFiller(store, map[string]float64{mat.ID: 550})

	rows := [][]string{{"1", "Цемент М500", "кг", "", ""}}
	_, filled, report, err := filler.FillTable(context.Background(), estimateHeaders, rows)
	require.NoError(t, err)
	require.Equal(t, 1, report.FilledFromCatalog)
	require.Equal(t, "550.00", filled[0][3])
	require.Equal(t, "12.50", filled[0][4])
	require.Equal(t, FillStatusCatalog, filled[0][5])
}

func TestFillNotFoundAndNoData(t *testing.T) {
	store := &memoryCatalog{}
	filler := newFiller(store, nil)

	rows := [][]string{
		{"1", "Неизвестный материал", "шт", "", ""},
		{"2", "", "", "", ""},
	}
	_, filled, report, err := filler.FillTable(context.Background(), estimateHeaders, rows)
	require.NoError(t, err)
	require.Equal(t, 1, report.NotFound)
	require.Equal(t, 1, report.NoData)
	require.Equal(t, FillStatusNotFound, filled[0][5])
	require.Equal(t, FillStatusNoData, filled[1][5])
	require.Equal(t, []MissingRow{{Name: "Неизвестный материал", Unit: "шт"}}, report.Missing)
}

func TestFillMissingSampleIsBounded(t *testing.T) {
	store := &memoryCatalog{}
	filler := newFiller(store, nil)

	var rows [][]string
	for i := 0; i < 8; i++ {
		rows = append(rows, []string{"1", "Материал " + string(rune('А'+i)), "шт", "", ""})
	}
	_, _, report, err := filler.FillTable(context.Background(), estimateHeaders, rows)
	require.NoError(t, err)
	require.Equal(t, 8, report.NotFound)
	require.Len(t, report.Missing, 5)
	require.Equal(t, MissingRow{Name: "Материал А", Unit: "шт"}, report.Missing[0])
}

func TestFillMaterialWithoutPrice(t *testing.T) {
	mat := cement()
	store := &memoryCatalog{materials: []catalog.Material{mat}}
	filler := newFiller(store, nil)

	rows := [][]string{{"1", "Цемент М500", "кг", "", ""}}
	_, filled, report, err := filler.FillTable(context.Background(), estimateHeaders, rows)
	require.NoError(t, err)
	require.Equal(t, 1, report.NotFound)
	require.Equal(t, FillStatusNotFound, filled[0][5])
}

func TestFillRequiresMaterialColumn(t *testing.T) {
	filler := newFiller(&memoryCatalog{}, nil)
	_, _, _, err := filler.FillTable(context.Background(), []string{"Цена"}, nil)
	require.Error(t, err)
}
