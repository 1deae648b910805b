// Package models defines data structures for the collector.
package models

import "time"

// NewsRecord is one collected broadcast item. Field order matches the
// tabular store's column order.
type NewsRecord struct {
	Date     string `csv:"date" json:"date"`
	Duration string `csv:"duration" json:"duration"`
	Title    string `csv:"title" json:"title"`
	Content  string `csv:"content" json:"content"`
	Link     string `csv:"link" json:"link"`
}

// Field returns the value of the column named name, or "" for unknown columns.
func (r NewsRecord) Field(name string) string {
	switch name {
	case "date":
		return r.Date
	case "duration":
		return r.Duration
	case "title":
		return r.Title
	case "content":
		return r.Content
	case "link":
		return r.Link
	default:
		return ""
	}
}

// Columns is the fixed column order of a freshly created tabular store.
var Columns = []string{"date", "duration", "title", "content", "link"}

// ProxyConfig holds outbound proxy URLs per scheme. Empty values mean direct.
type ProxyConfig struct {
	HTTP  string `yaml:"http"`
	HTTPS string `yaml:"https"`
}

// IsZero reports whether no proxy is configured.
func (p ProxyConfig) IsZero() bool {
	return p.HTTP == "" && p.HTTPS == ""
}

// CollectResult summarises one orchestrator run.
type CollectResult struct {
	Records       []NewsRecord
	StartTime     time.Time
	EndTime       time.Time
	Dates         []string
	DatesWithData []string
	EmptyDates    []string
	RetryCount    int
	RequestCount  int
	ErrorCount    int
	ErrorsByType  map[string]int
}
