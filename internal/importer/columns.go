package importer

import (
	"regexp"
	"strings"
)

// ColumnMap holds zero-based column indexes for the logical fields of a
// price-list row. Absent fields are -1.
type ColumnMap struct {
	Name    int
	Price   int
	Unit    int
	Article int
}

var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`наименован`),
		regexp.MustCompile(`материал`),
		regexp.MustCompile(`товар`),
		regexp.MustCompile(`продукт`),
		regexp.MustCompile(`name`),
		regexp.MustCompile(`material`),
		regexp.MustCompile(`product`),
		regexp.MustCompile(`item`),
	}
	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`цена`),
		regexp.MustCompile(`стоимость`),
		regexp.MustCompile(`price`),
		regexp.MustCompile(`cost`),
	}
	unitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`ед\.?\s*изм`),
		regexp.MustCompile(`единица`),
		regexp.MustCompile(`unit`),
	}
	articlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`артикул`),
		regexp.MustCompile(`код`),
		regexp.MustCompile(`article`),
		regexp.MustCompile(`code`),
		regexp.MustCompile(`sku`),
	}
)

func matchAny(patterns []*regexp.Regexp, header string) bool {
	for _, re := range patterns {
		if re.MatchString(header) {
			return true
		}
	}
	return false
}

// DetectColumns scans a header row and maps columns to logical fields.
// Each header is classified in priority order name, price, unit, article,
// and the first column claiming a field wins. A sheet without a name
// column cannot be imported.
func DetectColumns(headers []string) (ColumnMap, error) {
	m := ColumnMap{Name: -1, Price: -1, Unit: -1, Article: -1}
	for i, h := range headers {
		lower := strings.ToLower(strings.TrimSpace(h))
		if lower == "" {
			continue
		}
		// An assigned field no longer consumes headers: "Цена материала"
		// must fall through to the price set once a name column exists.
		switch {
		case m.Name == -1 && matchAny(namePatterns, lower):
			m.Name = i
		case m.Price == -1 && matchAny(pricePatterns, lower):
			m.Price = i
		case m.Unit == -1 && matchAny(unitPatterns, lower):
			m.Unit = i
		case m.Article == -1 && matchAny(articlePatterns, lower):
			m.Article = i
		}
	}
	if m.Name == -1 {
		return m, ErrNoNameColumn
	}
	return m, nil
}

// ExtractRow pulls the mapped cells out of one data row. Cells beyond the
// row length and unparseable prices come back empty rather than failing.
func ExtractRow(m ColumnMap, cells []string) RawRow {
	row := RawRow{
		Name:    cellAt(cells, m.Name),
		Unit:    cellAt(cells, m.Unit),
		Article: cellAt(cells, m.Article),
	}
	if raw := cellAt(cells, m.Price); raw != "" {
		if v, ok := parseNumber(raw); ok {
			row.Price = &v
		}
	}
	return row
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

// parseNumber reads a price cell, accepting both comma and dot decimal
// separators and ignoring currency text and grouping spaces.
func parseNumber(raw string) (float64, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	// "899 руб." filters to "899."; the dangling separator would flip the
	// decimal-mark heuristic, so only separators between digits survive.
	s := strings.Trim(b.String(), ".,")
	if s == "" {
		return 0, false
	}
	s = normalizeDecimal(s)
	v, err := parseFloat(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
