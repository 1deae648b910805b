// Package parser turns fetched broadcast pages into records and normalises dates.
package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-xwlb/models"
)

const (
	// ItemSelector matches one entry on a day-page.
	ItemSelector = "li"
	// ContentSelector matches the paragraphs of an item's detail page.
	ContentSelector = "#content_area p"
)

// ParseDayPage extracts one record per list entry of a day-page. Content is
// left empty; the caller fills it from the item's own page. Entries without
// a link and title are skipped. Relative links resolve against pageURL.
func ParseDayPage(body []byte, date, pageURL, unknownDuration string) ([]models.NewsRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse day page %s: %w", date, err)
	}

	base, _ := url.Parse(pageURL)

	var records []models.NewsRecord
	doc.Find(ItemSelector).Each(func(i int, li *goquery.Selection) {
		anchor := li.Find("a[href]").First()
		href, hasHref := anchor.Attr("href")
		title, hasTitle := anchor.Attr("title")
		if !hasHref || !hasTitle {
			slog.Debug("skipping entry without link or title",
				slog.String("date", date),
				slog.Int("index", i),
			)
			return
		}

		duration := unknownDuration
		if span := li.Find("span").First(); span.Length() > 0 {
			if text := strings.TrimSpace(span.Text()); text != "" {
				duration = text
			}
		}

		records = append(records, models.NewsRecord{
			Date:     date,
			Duration: duration,
			Title:    title,
			Link:     resolveLink(base, href),
		})
	})
	return records, nil
}

// ParseItemContent joins the text of every paragraph in the content region
// with newlines. It returns notFound when the region is absent or blank.
func ParseItemContent(body []byte, notFound string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return notFound
	}

	var paragraphs []string
	doc.Find(ContentSelector).Each(func(_ int, p *goquery.Selection) {
		paragraphs = append(paragraphs, p.Text())
	})
	content := strings.Join(paragraphs, "\n")
	if strings.TrimSpace(content) == "" {
		return notFound
	}
	return content
}

// ValidateRecord ensures a record carries the fields persistence relies on.
func ValidateRecord(r models.NewsRecord) error {
	if strings.TrimSpace(r.Date) == "" {
		return fmt.Errorf("record missing date")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("record missing title for %s", r.Link)
	}
	if strings.TrimSpace(r.Link) == "" {
		return fmt.Errorf("record missing link for %s", r.Title)
	}
	return nil
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
