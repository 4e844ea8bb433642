package scrape

import (
	"strconv"
	"strings"
)

// ParsePrice reads a price out of free-form page text such as
// "1 250,50 руб." or "$1,234.56". Currency words, symbols and grouping
// spaces are ignored. Both dot and comma decimal separators are accepted.
func ParsePrice(text string) (float64, error) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	// Suffixes like "руб." leave a dangling separator behind the filter;
	// keep only separators between digits.
	s := strings.Trim(b.String(), ".,")
	if s == "" {
		return 0, ErrPriceNotFound
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Both separators present: the rightmost one is the decimal mark.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// A single comma with exactly three trailing digits reads as a
		// thousands separator, anything else as a decimal mark.
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrPriceNotFound
	}
	return v, nil
}
