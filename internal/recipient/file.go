package recipient

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParseFile reads a CSV or XLSX spreadsheet and returns the filtered addresses
// of its email column. The column is the one headed "email" when present,
// otherwise the first column.
func ParseFile(name string, r io.Reader, dedupe bool) ([]string, error) {
	var (
		rows [][]string
		err  error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		rows, err = readCSV(r)
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return []string{}, nil
	}

	col := emailColumn(rows[0])
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if col < len(row) {
			values = append(values, row[col])
		}
	}

	return Filter(values, dedupe), nil
}

func emailColumn(header []string) int {
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "email", "e-mail", "mail":
			return i
		}
	}
	return 0
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: failed to parse: %w", err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("xlsx: failed to open: %w", err)
	}
	defer f.Close()

	sheetList := f.GetSheetList()
	if len(sheetList) == 0 {
		return nil, fmt.Errorf("xlsx: %w", ErrNoData)
	}

	rows, err := f.GetRows(sheetList[0])
	if err != nil {
		return nil, fmt.Errorf("xlsx: failed to read rows: %w", err)
	}
	return rows, nil
}

// FileSource wraps an already-received spreadsheet so it can be used as a Source.
type FileSource struct {
	name   string
	data   []byte
	dedupe bool
}

// NewFileSource creates a FileSource from the file name and its contents
func NewFileSource(name string, data []byte, dedupe bool) *FileSource {
	return &FileSource{name: name, data: data, dedupe: dedupe}
}

// Name implements Source.
func (s *FileSource) Name() string { return "file:" + filepath.Base(s.name) }

// Fetch implements Source.
func (s *FileSource) Fetch(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ParseFile(s.name, bytes.NewReader(s.data), s.dedupe)
}
