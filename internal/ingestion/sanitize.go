package ingestion

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dennisdiepolder/monti/callreport/internal/sheet"
)

// MaxCellLength caps sanitized cell text, in runes
const MaxCellLength = 1000

// SanitizeCell coerces a cell to trimmed text, neutralizes spreadsheet
// formula prefixes with a leading quote and caps the length
func SanitizeCell(c sheet.Cell) string {
	return SanitizeString(c.String())
}

// SanitizeString applies SanitizeCell rules to raw text
func SanitizeString(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	switch s[0] {
	case '=', '+', '-', '@':
		s = "'" + s
	}
	if utf8.RuneCountInString(s) > MaxCellLength {
		s = string([]rune(s)[:MaxCellLength])
	}
	return s
}

// ParseCount reads a non-negative base-10 count. Anything unparseable or
// negative yields 0.
func ParseCount(c sheet.Cell) int {
	if v, ok := c.AsNumber(); ok {
		if v < 0 || v > math.MaxInt32 || v != math.Trunc(v) {
			return 0
		}
		return int(v)
	}

	s := SanitizeCell(c)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ParseDuration reads a duration cell as seconds: plain seconds, "mm:ss" or
// "hh:mm:ss". Anything else yields 0.
func ParseDuration(c sheet.Cell) float64 {
	if v, ok := c.AsNumber(); ok {
		if v < 0 {
			return 0
		}
		return v
	}

	s := strings.TrimSpace(c.String())
	if s == "" {
		return 0
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return float64(total)
}
