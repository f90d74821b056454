package tableio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dvloznov/smart-financial-parser/internal/domain"
	"github.com/xuri/excelize/v2"
)

// OutputSheet is the sheet name used for XLSX output.
const OutputSheet = "cleaned"

// WriteCSV writes the header and one line per record. The header is written even with no records.
func WriteCSV(w io.Writer, records []*domain.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.OutputColumns); err != nil {
		return fmt.Errorf("WriteCSV: header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(rec.Values()); err != nil {
			return fmt.Errorf("WriteCSV: row %d: %w", rec.Row, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteCSV: flush: %w", err)
	}
	return nil
}

// EncodeCSV renders records as CSV bytes.
func EncodeCSV(records []*domain.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteXLSX writes the same table as WriteCSV into a single-sheet workbook.
func WriteXLSX(w io.Writer, records []*domain.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), OutputSheet); err != nil {
		return fmt.Errorf("WriteXLSX: rename sheet: %w", err)
	}

	if err := setRow(f, 1, domain.OutputColumns); err != nil {
		return fmt.Errorf("WriteXLSX: header: %w", err)
	}
	for i, rec := range records {
		if err := setRow(f, i+2, rec.Values()); err != nil {
			return fmt.Errorf("WriteXLSX: row %d: %w", rec.Row, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("WriteXLSX: write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(OutputSheet, cell, &cells)
}

// WriteFile writes records to path, choosing the encoder by extension and creating parent directories.
func WriteFile(path string, records []*domain.Record) error {
	format, err := FormatFromName(path)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("WriteFile: create directory %q: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("WriteFile: create %q: %w", path, err)
	}

	if format == FormatXLSX {
		err = WriteXLSX(f, records)
	} else {
		err = WriteCSV(f, records)
	}
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("WriteFile: close %q: %w", path, err)
	}
	return nil
}
