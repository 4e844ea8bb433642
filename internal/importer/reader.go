package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// RowReader yields the header row once and then data rows until io.EOF.
type RowReader interface {
	Headers() []string
	Next() ([]string, error)
	Close() error
}

// CSVReader reads a comma-separated price list from disk.
type CSVReader struct {
	file    *os.File
	reader  *csv.Reader
	headers []string
}

// OpenCSV opens path and consumes its header row.
func OpenCSV(path string) (*CSVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open price list: %w", err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	headers, err := r.Read()
	if err != nil {
		f.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("price list %s is empty", path)
		}
		return nil, fmt.Errorf("read header row: %w", err)
	}
	return &CSVReader{file: f, reader: r, headers: headers}, nil
}

func (c *CSVReader) Headers() []string { return c.headers }

func (c *CSVReader) Next() ([]string, error) { return c.reader.Read() }

func (c *CSVReader) Close() error { return c.file.Close() }

// sliceReader serves pre-parsed rows, used by tests and the estimate filler.
type sliceReader struct {
	headers []string
	rows    [][]string
	pos     int
}

func newSliceReader(headers []string, rows [][]string) *sliceReader {
	return &sliceReader{headers: headers, rows: rows}
}

func (s *sliceReader) Headers() []string { return s.headers }

func (s *sliceReader) Next() ([]string, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *sliceReader) Close() error { return nil }
