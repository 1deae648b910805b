package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatTag is a Go reference layout for one of the accepted date encodings.
type FormatTag string

const (
	// FormatDashed is YYYY-MM-DD, the canonical encoding used everywhere after ingestion.
	FormatDashed FormatTag = "2006-01-02"
	// FormatSlashed is YYYY/MM/DD.
	FormatSlashed FormatTag = "2006/01/02"
	// FormatCompact is YYYYMMDD, also used for 8-digit integers.
	FormatCompact FormatTag = "20060102"
)

// ResolveFormat infers which encoding value uses. It never fails: values it
// cannot place fall back to FormatCompact and fail later at parse time.
func ResolveFormat(value any) FormatTag {
	switch v := value.(type) {
	case string:
		switch {
		case strings.Contains(v, "-"):
			return FormatDashed
		case strings.Contains(v, "/"):
			return FormatSlashed
		default:
			return FormatCompact
		}
	case time.Time:
		return FormatDashed
	default:
		return FormatCompact
	}
}

// ParseDate parses value using the format chosen by ResolveFormat. The
// result is midnight UTC of that calendar day.
func ParseDate(value any) (time.Time, error) {
	if t, ok := value.(time.Time); ok {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}

	raw, err := dateString(value)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(string(ResolveFormat(value)), raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return t, nil
}

// CanonicalDate converts value to YYYY-MM-DD.
func CanonicalDate(value any) (string, error) {
	t, err := ParseDate(value)
	if err != nil {
		return "", err
	}
	return t.Format(string(FormatDashed)), nil
}

// CompactDate renders t as YYYYMMDD, the key used by day-page URLs.
func CompactDate(t time.Time) string {
	return t.Format(string(FormatCompact))
}

// DateRange returns every calendar day from start to end inclusive.
func DateRange(start, end time.Time) []time.Time {
	if end.Before(start) {
		return nil
	}
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func dateString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case nil:
		return "", fmt.Errorf("parse date: nil value")
	default:
		return fmt.Sprint(v), nil
	}
}
