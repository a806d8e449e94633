package schema

import (
	"fmt"
	"regexp"
	"strings"
)

const DefaultTabName = "Sheet1"

var spreadsheetURLPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// ColumnLetter converts a 1-based column index to its A1 letters (27 -> AA).
func ColumnLetter(n int) string {
	if n < 1 {
		return ""
	}
	var letters []byte
	for n > 0 {
		rem := (n - 1) % 26
		letters = append([]byte{byte('A' + rem)}, letters...)
		n = (n - 1) / 26
	}
	return string(letters)
}

// NormalizeTabName trims the tab name and falls back to Sheet1.
func NormalizeTabName(tab string) string {
	tab = strings.TrimSpace(tab)
	if tab == "" {
		return DefaultTabName
	}
	return tab
}

// QuoteTab renders a tab name for A1 notation, doubling embedded quotes.
func QuoteTab(tab string) string {
	return "'" + strings.ReplaceAll(NormalizeTabName(tab), "'", "''") + "'"
}

func HeaderRange(tab string) string {
	return QuoteTab(tab) + "!1:1"
}

// BodyRange spans every body row from A2 through lastColumn.
func BodyRange(tab, lastColumn string) string {
	return fmt.Sprintf("%s!A2:%s", QuoteTab(tab), lastColumn)
}

// ColumnRange spans one column from row 2 down.
func ColumnRange(tab, column string) string {
	return fmt.Sprintf("%s!%s2:%s", QuoteTab(tab), column, column)
}

// FullColumnRange spans one column including the header row.
func FullColumnRange(tab, column string) string {
	return fmt.Sprintf("%s!%s:%s", QuoteTab(tab), column, column)
}

func RowRange(tab string, row, columns int) string {
	return fmt.Sprintf("%s!A%d:%s%d", QuoteTab(tab), row, ColumnLetter(columns), row)
}

func CellRange(tab, column string, row int) string {
	return fmt.Sprintf("%s!%s%d", QuoteTab(tab), column, row)
}

// ExtractSpreadsheetID accepts either a bare id or a full spreadsheet URL.
func ExtractSpreadsheetID(input string) string {
	input = strings.TrimSpace(input)
	if m := spreadsheetURLPattern.FindStringSubmatch(input); m != nil {
		return m[1]
	}
	return input
}
