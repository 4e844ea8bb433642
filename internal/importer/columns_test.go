package importer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectColumnsRussianHeaders(t *testing.T) {
	m, err := DetectColumns([]string{"Материал", "Единица измерения", "Цена материала, за единицу"})
	require.NoError(t, err)
	require.Equal(t, 0, m.Name)
	require.Equal(t, 1, m.Unit)
	require.Equal(t, 2, m.Price)
	require.Equal(t, -1, m.Article)
}

func TestDetectColumnsEnglishHeaders(t *testing.T) {
	m, err := DetectColumns([]string{"SKU", "Product Name", "Unit", "Price, USD"})
	require.NoError(t, err)
	require.Equal(t, 0, m.Article)
	require.Equal(t, 1, m.Name)
	require.Equal(t, 2, m.Unit)
	require.Equal(t, 3, m.Price)
}

func TestDetectColumnsFirstMatchWins(t *testing.T) {
	m, err := DetectColumns([]string{"Наименование", "Товар", "Цена", "Стоимость"})
	require.NoError(t, err)
	require.Equal(t, 0, m.Name)
	require.Equal(t, 2, m.Price)
}

func TestDetectColumnsPriorityOrder(t *testing.T) {
	// "Код товара" hits both the name set (товар) and the article set (код);
	// the name set is checked first.
	m, err := DetectColumns([]string{"Код товара", "Цена"})
	require.NoError(t, err)
	require.Equal(t, 0, m.Name)
	require.Equal(t, -1, m.Article)
}

func TestDetectColumnsAssignedFieldReleasesHeader(t *testing.T) {
	// "Цена материала" hits the name set too; with the name column already
	// claimed it must land in the price set instead of being swallowed.
	m, err := DetectColumns([]string{"Наименование", "Цена материала, за единицу"})
	require.NoError(t, err)
	require.Equal(t, 0, m.Name)
	require.Equal(t, 1, m.Price)
}

func TestDetectColumnsNoNameColumn(t *testing.T) {
	_, err := DetectColumns([]string{"Цена", "Ед. изм.", "Артикул"})
	require.ErrorIs(t, err, ErrNoNameColumn)
}

func TestDetectColumnsEmptyAndUnknownHeaders(t *testing.T) {
	m, err := DetectColumns([]string{"", "Комментарий", "Материал"})
	require.NoError(t, err)
	require.Equal(t, 2, m.Name)
	require.Equal(t, -1, m.Price)
}

func TestExtractRowPriceFormats(t *testing.T) {
	m := ColumnMap{Name: 0, Price: 1, Unit: -1, Article: -1}

	cases := []struct {
		raw  string
		want float64
	}{
		{"150", 150},
		{"150.50", 150.5},
		{"150,50", 150.5},
		{"1 250,75", 1250.75},
		{"1.234,56", 1234.56},
		{"1,234.56", 1234.56},
		{"1,234", 1234},
		{"899 руб.", 899},
		{"1 250,50 руб.", 1250.5},
		{"1.234,56 руб.", 1234.56},
		{"$12.99", 12.99},
	}
	for _, tc := range cases {
		row := ExtractRow(m, []string{"Цемент", tc.raw})
		require.NotNil(t, row.Price, "price %q", tc.raw)
		require.InDelta(t, tc.want, *row.Price, 0.001, "price %q", tc.raw)
	}
}

func TestExtractRowUnparseablePrice(t *testing.T) {
	m := ColumnMap{Name: 0, Price: 1, Unit: 2, Article: -1}
	row := ExtractRow(m, []string{"Цемент", "договорная", "кг"})
	require.Nil(t, row.Price)
	require.Equal(t, "Цемент", row.Name)
	require.Equal(t, "кг", row.Unit)
}

func TestExtractRowShortRow(t *testing.T) {
	m := ColumnMap{Name: 0, Price: 3, Unit: 4, Article: -1}
	row := ExtractRow(m, []string{"Цемент"})
	require.Equal(t, "Цемент", row.Name)
	require.Nil(t, row.Price)
	require.Empty(t, row.Unit)
}
