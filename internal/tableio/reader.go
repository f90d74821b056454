// Package tableio reads loosely structured input tables and writes the cleaned output table.
package tableio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported table format")

// Table is a raw table of untyped text cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// Format identifies a table encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromName picks the table format from a file name extension.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", "":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// ReadFile reads a table from a local file, choosing the decoder by extension.
func ReadFile(path string, hasHeader bool) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadFile: open %q: %w", path, err)
	}
	defer f.Close()

	return Read(f, path, hasHeader)
}

// ReadBytes decodes an in-memory table. name is only used to pick the format.
func ReadBytes(data []byte, name string, hasHeader bool) (*Table, error) {
	return Read(bytes.NewReader(data), name, hasHeader)
}

// Read decodes a table from r. name is only used to pick the format.
func Read(r io.Reader, name string, hasHeader bool) (*Table, error) {
	format, err := FormatFromName(name)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	switch format {
	case FormatXLSX:
		rows, err = readXLSX(r)
	default:
		rows, err = readCSV(r)
	}
	if err != nil {
		return nil, err
	}

	return split(rows, hasHeader), nil
}

func split(rows [][]string, hasHeader bool) *Table {
	t := &Table{}
	if hasHeader && len(rows) > 0 {
		t.Header = rows[0]
		rows = rows[1:]
	}
	t.Rows = rows
	return t
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // messy exports have ragged rows
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("readCSV: %w", err)
	}

	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("readXLSX: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("readXLSX: read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}
