package mapping

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"upwork_sheet_sync/internal/destination"
)

// NoProposalID marks connects-only rows that have no real proposal.
const NoProposalID = "--"

type ConnectsKind int

const (
	Spent ConnectsKind = iota
	Refund
)

var (
	digitsPattern    = regexp.MustCompile(`^\d+$`)
	numberPattern    = regexp.MustCompile(`[+-]?\d+(\.\d+)?`)
	hyperlinkPattern = regexp.MustCompile(`(?i)^=HYPERLINK\(\s*"((?:[^"]|"")*)"\s*[,;]\s*"((?:[^"]|"")*)"\s*\)$`)
)

// TextCell forces the destination to keep the value as text.
func TextCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return "'" + value
}

// IDCell text-forces purely numeric identifiers so leading zeros and long
// digit runs survive.
func IDCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || value == NoProposalID || !digitsPattern.MatchString(value) {
		return value
	}
	return "'" + value
}

// LinkCell renders a clickable label when both label and url are present.
func LinkCell(label, url string) string {
	if label == "" || url == "" {
		return label
	}
	return `=HYPERLINK("` + escapeQuotes(url) + `","` + escapeQuotes(label) + `")`
}

// ParseHyperlink extracts url and label from a HYPERLINK formula.
func ParseHyperlink(formula string) (url, label string, ok bool) {
	m := hyperlinkPattern.FindStringSubmatch(strings.TrimSpace(formula))
	if m == nil {
		return "", "", false
	}
	return unescapeQuotes(m[1]), unescapeQuotes(m[2]), true
}

// ConnectsCell renders a signed amount, or "" for zero, negative or
// non-finite input.
func ConnectsCell(amount float64, kind ConnectsKind) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return ""
	}
	prefix := "-"
	if kind == Refund {
		prefix = "+"
	}
	return prefix + strconv.FormatFloat(math.Abs(amount), 'f', -1, 64)
}

// ParseConnects reads the magnitude of the first number in a cell such as
// "-1,024" or "+7". Cells without a number read as 0.
func ParseConnects(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return math.Abs(t)
	case int:
		return math.Abs(float64(t))
	}
	text := strings.ReplaceAll(destination.CellString(v), ",", "")
	match := numberPattern.FindString(text)
	if match == "" {
		return 0
	}
	n, err := strconv.ParseFloat(match, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return math.Abs(n)
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}

func unescapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}
