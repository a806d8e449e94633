package inventory

import (
	"context"
	"strings"

	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/schema"
	"upwork_sheet_sync/internal/syncerr"

	"github.com/rs/zerolog/log"
)

// Inventory classifies the body rows of one tab at one point in time.
type Inventory struct {
	// EmptyRows ascend and start at 2.
	EmptyRows    []int
	NextRowIndex int
	// ProtectedValues holds, for empty rows only, the non-blank values found
	// in protected columns keyed by 1-based column position.
	ProtectedValues map[int]map[int]string
	RowCount        int
}

// Scan reads every body row across the schema's columns in one ranged read.
// Protected columns are ignored by the emptiness test and their values are
// kept for overlay when the row is reused.
func Scan(ctx context.Context, values destination.Values, spreadsheetID, tab string, s *schema.Schema, protected []string) (*Inventory, error) {
	log.Debug().Str("tab", tab).Msg("Scanning body rows")

	rows, err := values.GetValues(ctx, spreadsheetID, schema.BodyRange(tab, s.LastColumn()), destination.RenderFormatted)
	if err != nil {
		return nil, syncerr.Classify("scan rows", err)
	}

	inv := Classify(rows, s, protected)
	log.Debug().
		Int("rows", inv.RowCount).
		Int("empty_rows", len(inv.EmptyRows)).
		Int("next_row", inv.NextRowIndex).
		Msg("Scanned body rows")
	return inv, nil
}

// Classify applies the emptiness predicate to rows read from A2 down.
func Classify(rows [][]interface{}, s *schema.Schema, protected []string) *Inventory {
	columns := s.ColumnCount()
	protectedPos := make(map[int]bool)
	for _, name := range protected {
		for _, pos := range s.Positions(name) {
			protectedPos[pos] = true
		}
	}

	inv := &Inventory{
		ProtectedValues: make(map[int]map[int]string),
		RowCount:        len(rows),
		NextRowIndex:    len(rows) + 2,
	}

	for i, row := range rows {
		rowIndex := i + 2
		empty := true
		for col := 1; col <= columns; col++ {
			if protectedPos[col] {
				continue
			}
			if cellText(row, col) != "" {
				empty = false
				break
			}
		}
		if !empty {
			continue
		}
		inv.EmptyRows = append(inv.EmptyRows, rowIndex)
		for pos := range protectedPos {
			if v := cellText(row, pos); v != "" {
				if inv.ProtectedValues[rowIndex] == nil {
					inv.ProtectedValues[rowIndex] = make(map[int]string)
				}
				inv.ProtectedValues[rowIndex][pos] = v
			}
		}
	}
	return inv
}

// Overlay writes the protected values recorded for rowIndex back onto a
// freshly mapped row.
func (inv *Inventory) Overlay(rowIndex int, row []interface{}) {
	for pos, v := range inv.ProtectedValues[rowIndex] {
		if pos-1 < len(row) {
			row[pos-1] = v
		}
	}
}

// Allocator hands out write targets: the empty-row pool in ascending order
// first, then appended rows.
type Allocator struct {
	pool []int
	next int
}

func (inv *Inventory) Allocator() *Allocator {
	pool := make([]int, len(inv.EmptyRows))
	copy(pool, inv.EmptyRows)
	return &Allocator{pool: pool, next: inv.NextRowIndex}
}

func (a *Allocator) Next() (rowIndex int, fromPool bool) {
	if len(a.pool) > 0 {
		rowIndex = a.pool[0]
		a.pool = a.pool[1:]
		return rowIndex, true
	}
	rowIndex = a.next
	a.next++
	return rowIndex, false
}

func (a *Allocator) NextRowIndex() int {
	return a.next
}

func (a *Allocator) Remaining() int {
	return len(a.pool)
}

// cellText returns the trimmed text of the cell at a 1-based column.
func cellText(row []interface{}, col int) string {
	if col-1 >= len(row) {
		return ""
	}
	return strings.TrimSpace(destination.CellString(row[col-1]))
}
