package reconcile

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/mapping"
)

var a1Pattern = regexp.MustCompile(`^'((?:[^']|'')*)'!([A-Z]*)(\d*)(?::([A-Z]*)(\d*))?$`)

// grid is an in-memory destination. Cells hold what a user would see:
// a leading apostrophe is dropped, HYPERLINK formulas render their label
// and keep the formula for formula reads.
type grid struct {
	mu       sync.Mutex
	tabs     map[string][][]string
	formulas map[string]string
	ids      map[string]int64

	readErr     error
	writeErr    error
	pasteErr    error
	backgrounds []destination.GridRange
	pastes      int
	writes      int
	reads       int
	afterWrite  func(g *grid)
}

func newGrid(headers ...string) *grid {
	g := &grid{
		tabs:     map[string][][]string{"Sheet1": {}},
		formulas: map[string]string{},
		ids:      map[string]int64{"Sheet1": 0},
	}
	if len(headers) > 0 {
		g.tabs["Sheet1"] = [][]string{headers}
	}
	return g
}

// setRow stores raw user input on a 1-based row of Sheet1.
func (g *grid) setRow(row int, cells ...string) {
	for i, c := range cells {
		g.set("Sheet1", i+1, row, c)
	}
}

func (g *grid) cell(col string, row int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.at("Sheet1", colNumber(col), row)
}

func (g *grid) rowValues(row int) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	rows := g.tabs["Sheet1"]
	if row-1 >= len(rows) {
		return nil
	}
	return append([]string(nil), rows[row-1]...)
}

func (g *grid) rowCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tabs["Sheet1"])
}

func (g *grid) at(tab string, col, row int) string {
	rows := g.tabs[tab]
	if row-1 >= len(rows) || col-1 >= len(rows[row-1]) {
		return ""
	}
	return rows[row-1][col-1]
}

func (g *grid) set(tab string, col, row int, input string) {
	rows := g.tabs[tab]
	for len(rows) < row {
		rows = append(rows, nil)
	}
	for len(rows[row-1]) < col {
		rows[row-1] = append(rows[row-1], "")
	}
	key := fmt.Sprintf("%s!%d:%d", tab, col, row)
	delete(g.formulas, key)
	value := input
	switch {
	case strings.HasPrefix(input, "'"):
		value = input[1:]
	case strings.HasPrefix(input, "="):
		g.formulas[key] = input
		if _, label, ok := mapping.ParseHyperlink(input); ok {
			value = label
		}
	}
	rows[row-1][col-1] = value
	g.tabs[tab] = rows
}

type rect struct {
	tab                string
	startCol, startRow int
	endCol, endRow     int
}

func parseA1(a1 string) rect {
	m := a1Pattern.FindStringSubmatch(a1)
	if m == nil {
		panic("bad range " + a1)
	}
	r := rect{tab: strings.ReplaceAll(m[1], "''", "'")}
	r.startCol, r.startRow = colNumber(m[2]), atoi(m[3])
	if strings.Contains(a1, ":") {
		r.endCol, r.endRow = colNumber(m[4]), atoi(m[5])
	} else {
		r.endCol, r.endRow = r.startCol, r.startRow
	}
	if r.startCol == 0 {
		r.startCol = 1
	}
	if r.startRow == 0 {
		r.startRow = 1
	}
	return r
}

func colNumber(letters string) int {
	n := 0
	for _, c := range letters {
		n = n*26 + int(c-'A'+1)
	}
	return n
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func (g *grid) read(a1 string, render destination.Render) [][]interface{} {
	r := parseA1(a1)
	rows := g.tabs[r.tab]
	endRow := r.endRow
	if endRow == 0 || endRow > len(rows) {
		endRow = len(rows)
	}
	var out [][]interface{}
	for row := r.startRow; row <= endRow; row++ {
		src := rows[row-1]
		endCol := r.endCol
		if endCol == 0 || endCol > len(src) {
			endCol = len(src)
		}
		var cells []interface{}
		for col := r.startCol; col <= endCol; col++ {
			v := src[col-1]
			if f, ok := g.formulas[fmt.Sprintf("%s!%d:%d", r.tab, col, row)]; ok && render == destination.RenderFormula {
				v = f
			}
			cells = append(cells, v)
		}
		for len(cells) > 0 && cells[len(cells)-1] == "" {
			cells = cells[:len(cells)-1]
		}
		out = append(out, cells)
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out
}

func (g *grid) GetValues(_ context.Context, _, a1 string, render destination.Render) ([][]interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reads++
	if g.readErr != nil {
		return nil, g.readErr
	}
	return g.read(a1, render), nil
}

func (g *grid) BatchGetValues(_ context.Context, _ string, ranges []string, render destination.Render) ([][][]interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reads++
	out := make([][][]interface{}, len(ranges))
	for i, r := range ranges {
		out[i] = g.read(r, render)
	}
	return out, nil
}

func (g *grid) BatchUpdateValues(_ context.Context, _ string, data []destination.ValueRange) error {
	g.mu.Lock()
	g.writes++
	if g.writeErr != nil {
		g.mu.Unlock()
		return g.writeErr
	}
	for _, d := range data {
		r := parseA1(d.Range)
		for i, row := range d.Values {
			for j, v := range row {
				g.set(r.tab, r.startCol+j, r.startRow+i, destination.CellString(v))
			}
		}
	}
	hook := g.afterWrite
	g.mu.Unlock()
	if hook != nil {
		hook(g)
	}
	return nil
}

func (g *grid) SheetID(_ context.Context, _, title string) (int64, error) {
	if id, ok := g.ids[title]; ok {
		return id, nil
	}
	return 0, destination.ErrSheetNotFound
}

func (g *grid) FirstSheetID(context.Context, string) (int64, error) { return 0, nil }

func (g *grid) CopySheetFrom(context.Context, string, int64, string) (int64, error) {
	return 0, destination.ErrUnsupported
}

func (g *grid) RenameSheet(context.Context, string, int64, string, bool) error { return nil }

func (g *grid) DeleteSheet(context.Context, string, int64) error { return nil }

func (g *grid) CopyPaste(context.Context, string, destination.GridRange, destination.GridRange, destination.PasteType) error {
	g.pastes++
	return g.pasteErr
}

func (g *grid) SetBackground(_ context.Context, _ string, ranges []destination.GridRange, _ destination.Color) error {
	g.backgrounds = append(g.backgrounds, ranges...)
	return nil
}

func (g *grid) StyleHeaderRow(context.Context, string, int64, int) error { return nil }

func (g *grid) ValidationValues(context.Context, string, string) ([]string, error) { return nil, nil }
