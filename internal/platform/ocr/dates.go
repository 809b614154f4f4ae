package ocr

import (
	"regexp"
	"strings"
	"time"
)

// dateRe matches year-first and day-first numeric dates with -, / or .
// separators anywhere in the document text.
var dateRe = regexp.MustCompile(`\b(\d{4}[-/.]\d{1,2}[-/.]\d{1,2}|\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4})\b`)

// dateLayouts are tried in order against the normalized candidate. Year-first
// wins over day-first, which wins over the US month-first form.
var dateLayouts = []string{
	"2006-1-2",
	"2-1-2006",
	"1-2-2006",
	"2-1-06",
}

// ParseReportDate scans text for the first date-shaped token and parses it.
// It returns false when no token matches or no layout can parse the token.
func ParseReportDate(text string) (time.Time, bool) {
	m := dateRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}

	raw := strings.NewReplacer(".", "-", "/", "-").Replace(m[1])
	for _, layout := range dateLayouts {
		if dt, err := time.Parse(layout, raw); err == nil {
			return dt, true
		}
	}
	return time.Time{}, false
}
