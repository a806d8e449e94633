package workbook

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var refPattern = regexp.MustCompile(`^([A-Za-z]*)(\d*)$`)

// area is a 1-based inclusive rectangle. Zero bounds are open-ended.
type area struct {
	sheet    string
	startCol int
	startRow int
	endCol   int
	endRow   int
}

// parseRange reads A1 notation as produced by the schema package:
// 'Tab'!A2:Z, 'Tab'!1:1, 'Tab'!S:S, 'Tab'!C7.
func parseRange(a1 string) (area, error) {
	i := strings.LastIndex(a1, "!")
	if i < 0 {
		return area{}, fmt.Errorf("range %q has no sheet name", a1)
	}
	a := area{sheet: unquoteSheet(a1[:i])}

	parts := strings.SplitN(a1[i+1:], ":", 2)
	var err error
	if a.startCol, a.startRow, err = parseRef(parts[0]); err != nil {
		return area{}, fmt.Errorf("range %q: %w", a1, err)
	}
	if len(parts) == 1 {
		a.endCol, a.endRow = a.startCol, a.startRow
	} else if a.endCol, a.endRow, err = parseRef(parts[1]); err != nil {
		return area{}, fmt.Errorf("range %q: %w", a1, err)
	}
	if a.startCol == 0 {
		a.startCol = 1
	}
	if a.startRow == 0 {
		a.startRow = 1
	}
	return a, nil
}

func parseRef(ref string) (col, row int, err error) {
	m := refPattern.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, 0, fmt.Errorf("invalid reference %q", ref)
	}
	if m[1] != "" {
		if col, err = excelize.ColumnNameToNumber(strings.ToUpper(m[1])); err != nil {
			return 0, 0, err
		}
	}
	if m[2] != "" {
		if row, err = strconv.Atoi(m[2]); err != nil {
			return 0, 0, err
		}
	}
	return col, row, nil
}

func unquoteSheet(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// sqrefCovers reports whether a space separated list of refs such as
// "C2:C10 E2" includes the cell.
func sqrefCovers(sqref string, col, row int) bool {
	for _, ref := range strings.Fields(sqref) {
		parts := strings.SplitN(ref, ":", 2)
		c1, r1, err := excelize.CellNameToCoordinates(strings.ReplaceAll(parts[0], "$", ""))
		if err != nil {
			continue
		}
		c2, r2 := c1, r1
		if len(parts) == 2 {
			if c2, r2, err = excelize.CellNameToCoordinates(strings.ReplaceAll(parts[1], "$", "")); err != nil {
				continue
			}
		}
		if col >= c1 && col <= c2 && row >= r1 && row <= r2 {
			return true
		}
	}
	return false
}
