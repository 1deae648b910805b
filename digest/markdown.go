// Package digest renders collected records as a Markdown news digest.
package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-xwlb/models"
)

// HeaderLayout is the timestamp layout of the digest heading.
const HeaderLayout = "2006-01-02 15:04"

const (
	missingTitle   = "无标题"
	missingLink    = "无链接"
	missingContent = "内容未找到"
)

// Markdown renders records as a heading stamped with generatedAt followed
// by one list entry per record, in the given order.
func Markdown(records []models.NewsRecord, generatedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# 新闻联播 (%s)\n", generatedAt.Format(HeaderLayout))
	for _, r := range records {
		fmt.Fprintf(&b, "\n- [%s](%s)\n  %s",
			orDefault(r.Title, missingTitle),
			orDefault(r.Link, missingLink),
			orDefault(r.Content, missingContent),
		)
	}
	return b.String()
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
