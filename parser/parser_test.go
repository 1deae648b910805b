package parser

import (
	"testing"

	"github.com/aluiziolira/go-scrape-xwlb/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dayPage = `<html><body><ul>
<li><a href="https://tv.example.test/2024/09/26/VIDE1.shtml" title="[视频]国内联播快讯"><img src="x.jpg"></a><span>00:03:12</span></li>
<li><a href="/2024/09/26/VIDE2.shtml" title="[视频]Second item">Second</a></li>
<li><a href="/2024/09/26/VIDE3.shtml">no title attribute</a><span>00:01:00</span></li>
<li>plain navigation entry</li>
</ul></body></html>`

func TestParseDayPage(t *testing.T) {
	records, err := ParseDayPage([]byte(dayPage), "20240926", "https://tv.example.test/lm/xwlb/day/20240926.shtml", "unknown")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, models.NewsRecord{
		Date:     "20240926",
		Duration: "00:03:12",
		Title:    "[视频]国内联播快讯",
		Link:     "https://tv.example.test/2024/09/26/VIDE1.shtml",
	}, records[0])

	assert.Equal(t, "unknown", records[1].Duration)
	assert.Equal(t, "https://tv.example.test/2024/09/26/VIDE2.shtml", records[1].Link)
	assert.Empty(t, records[1].Content)
}

func TestParseDayPageEmpty(t *testing.T) {
	records, err := ParseDayPage([]byte("<html><body><p>nothing yet</p></body></html>"), "20240926", "", "unknown")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseItemContent(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "paragraphs joined by newline",
			body:     `<div id="content_area"><p>央视网消息（新闻联播）：first</p><p>second</p></div><p>outside</p>`,
			expected: "央视网消息（新闻联播）：first\nsecond",
		},
		{
			name:     "missing region",
			body:     `<div id="other"><p>text</p></div>`,
			expected: "not found",
		},
		{
			name:     "blank region",
			body:     `<div id="content_area"><p>  </p></div>`,
			expected: "not found",
		},
		{
			name:     "empty body",
			body:     "",
			expected: "not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseItemContent([]byte(tt.body), "not found"))
		})
	}
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  models.NewsRecord
		wantErr bool
	}{
		{
			name:   "valid record",
			record: models.NewsRecord{Date: "2024-09-26", Title: "Example", Link: "https://tv.example.test/1"},
		},
		{
			name:    "missing date",
			record:  models.NewsRecord{Title: "Example", Link: "https://tv.example.test/1"},
			wantErr: true,
		},
		{
			name:    "missing title",
			record:  models.NewsRecord{Date: "2024-09-26", Title: " ", Link: "https://tv.example.test/1"},
			wantErr: true,
		},
		{
			name:    "missing link",
			record:  models.NewsRecord{Date: "2024-09-26", Title: "Example"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.record)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
