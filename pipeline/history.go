package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-xwlb/models"
	"github.com/aluiziolira/go-scrape-xwlb/parser"
	"github.com/jszwec/csvutil"
)

var (
	errNotObject   = errors.New("store line is not a JSON object")
	errMissingDate = errors.New("store line has no date")
)

// LastRecord returns the last line of linesPath that decodes as a dated
// record object. Malformed lines, non-objects and undated objects are
// logged and skipped. A missing file, or one without a
// single valid line, yields nil.
func LastRecord(linesPath string) (*models.NewsRecord, error) {
	f, err := os.Open(linesPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open lines file: %w", err)
	}
	defer f.Close()

	var last *models.NewsRecord
	reader := bufio.NewReader(f)
	for lineNum := 1; ; lineNum++ {
		line, readErr := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if r, err := decodeLine(trimmed); err != nil {
				slog.Warn("skipping malformed store line",
					slog.String("path", linesPath),
					slog.Int("line", lineNum),
					slog.Any("error", err),
				)
			} else {
				last = r
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if last != nil {
				slog.Warn("lines file read stopped early",
					slog.String("path", linesPath),
					slog.Int("line", lineNum),
					slog.Any("error", readErr),
				)
				break
			}
			return nil, fmt.Errorf("read lines file: %w", readErr)
		}
	}
	return last, nil
}

// decodeLine accepts only a JSON object carrying a date.
func decodeLine(line []byte) (*models.NewsRecord, error) {
	if line[0] != '{' {
		return nil, errNotObject
	}
	var r models.NewsRecord
	if err := json.Unmarshal(line, &r); err != nil {
		return nil, err
	}
	if strings.TrimSpace(r.Date) == "" {
		return nil, errMissingDate
	}
	return &r, nil
}

// IsNewer reports whether candidate is a strictly later calendar day than last.
func IsNewer(candidate, last string) (bool, error) {
	c, err := parser.ParseDate(candidate)
	if err != nil {
		return false, fmt.Errorf("batch date: %w", err)
	}
	l, err := parser.ParseDate(last)
	if err != nil {
		return false, fmt.Errorf("stored date: %w", err)
	}
	return c.After(l), nil
}

// LoadRange reads the tabular store and returns the records with content
// whose date lies in [from, to], newest first. A zero bound is open.
func LoadRange(tablePath string, from, to time.Time) ([]models.NewsRecord, error) {
	f, err := os.Open(tablePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open table file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read table header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	dec, err := csvutil.NewDecoder(reader, header...)
	if err != nil {
		return nil, fmt.Errorf("table decoder: %w", err)
	}

	type dated struct {
		record models.NewsRecord
		day    time.Time
	}
	var rows []dated
	for {
		var r models.NewsRecord
		if err := dec.Decode(&r); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decode table row: %w", err)
		}
		if r.Content == "" {
			continue
		}
		day, err := parser.ParseDate(r.Date)
		if err != nil {
			slog.Debug("skipping table row with bad date", slog.String("date", r.Date))
			continue
		}
		if !from.IsZero() && day.Before(from) {
			continue
		}
		if !to.IsZero() && day.After(to) {
			continue
		}
		rows = append(rows, dated{record: r, day: day})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].day.After(rows[j].day)
	})
	out := make([]models.NewsRecord, len(rows))
	for i, row := range rows {
		out[i] = row.record
	}
	return out, nil
}
