// Package pipeline cleans collected records and persists them to
// append-only store pairs.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-xwlb/models"
)

// DualWriter appends to both files of a store pair.
type DualWriter struct {
	csvWriter  *CSVWriter
	jsonWriter *JSONWriter
}

// NewDualWriter opens the table and lines files of one store pair.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON writer: %w", err)
	}

	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		jsonWriter.Close()
		return nil, fmt.Errorf("failed to open CSV writer: %w", err)
	}

	return &DualWriter{
		csvWriter:  csvWriter,
		jsonWriter: jsonWriter,
	}, nil
}

// Write appends records to the lines file first, then the table.
func (dw *DualWriter) Write(records []models.NewsRecord) error {
	if err := dw.jsonWriter.Write(records); err != nil {
		return fmt.Errorf("JSON write failed: %w", err)
	}

	if err := dw.csvWriter.Write(records); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}

	return nil
}

// Close closes both writers.
func (dw *DualWriter) Close() error {
	var errs []error

	if err := dw.jsonWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("JSON close failed: %w", err))
	}

	if err := dw.csvWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("CSV close failed: %w", err))
	}

	return errors.Join(errs...)
}
