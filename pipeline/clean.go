package pipeline

import (
	"log/slog"
	"strings"

	"github.com/aluiziolira/go-scrape-xwlb/models"
	"github.com/aluiziolira/go-scrape-xwlb/parser"
	"golang.org/x/text/unicode/norm"
)

// Cleaner normalises freshly scraped records before persistence.
type Cleaner struct {
	TitlePrefix   string
	ContentPrefix string
	NotFound      string
}

// CleanBatch canonicalises dates, strips the title tag and content
// boilerplate, and drops records whose content was never found. The steps
// run in that order for every record. Records whose date cannot be parsed,
// or left without a title or link, are dropped and logged.
func (c *Cleaner) CleanBatch(records []models.NewsRecord) []models.NewsRecord {
	out := make([]models.NewsRecord, 0, len(records))
	for _, r := range records {
		date, err := parser.CanonicalDate(r.Date)
		if err != nil {
			slog.Warn("dropping record with unparsable date",
				slog.String("date", r.Date),
				slog.String("link", r.Link),
				slog.Any("error", err),
			)
			continue
		}
		r.Date = date
		r.Title = trimPrefix(norm.NFC.String(r.Title), c.TitlePrefix)
		r.Content = trimPrefix(norm.NFC.String(r.Content), c.ContentPrefix)
		if r.Content == "" || r.Content == c.NotFound {
			continue
		}
		if err := parser.ValidateRecord(r); err != nil {
			slog.Warn("dropping incomplete record",
				slog.String("date", r.Date),
				slog.String("link", r.Link),
				slog.Any("error", err),
			)
			continue
		}
		out = append(out, r)
	}
	return out
}

// SplitByTitle returns the records whose title equals title exactly.
func SplitByTitle(records []models.NewsRecord, title string) []models.NewsRecord {
	var subset []models.NewsRecord
	for _, r := range records {
		if r.Title == title {
			subset = append(subset, r)
		}
	}
	return subset
}

func trimPrefix(s, prefix string) string {
	s = strings.TrimSpace(s)
	if prefix != "" {
		s = strings.TrimPrefix(s, prefix)
	}
	return strings.TrimSpace(s)
}
