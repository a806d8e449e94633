// Package workbook is a local .xlsx destination. It stands in for a Google
// spreadsheet on offline runs and in tests; the spreadsheet id arguments are
// ignored because a workbook file holds exactly one spreadsheet.
package workbook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/mapping"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

var _ destination.Spreadsheet = (*Workbook)(nil)

type Workbook struct {
	mu   sync.Mutex
	file *excelize.File
	path string
}

// New returns an in-memory workbook with a single Sheet1 tab.
func New() *Workbook {
	return &Workbook{file: excelize.NewFile()}
}

// Open loads the workbook at path, or starts an empty one that Save will
// create.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("path", path).Msg("Workbook not found, starting a new one")
		return &Workbook{file: excelize.NewFile(), path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	return &Workbook{file: f, path: path}, nil
}

// ID identifies this workbook as a copy source.
func (w *Workbook) ID() string {
	if w.path == "" {
		return "local"
	}
	return w.path
}

func (w *Workbook) Save() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.path == "" {
		return nil
	}
	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func (w *Workbook) Close() error {
	return w.file.Close()
}

func (w *Workbook) hasSheet(name string) bool {
	for _, s := range w.file.GetSheetList() {
		if s == name {
			return true
		}
	}
	return false
}

func (w *Workbook) GetValues(_ context.Context, _, a1 string, render destination.Render) ([][]interface{}, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.read(a1, render)
}

func (w *Workbook) BatchGetValues(_ context.Context, _ string, ranges []string, render destination.Render) ([][][]interface{}, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][][]interface{}, len(ranges))
	for i, r := range ranges {
		values, err := w.read(r, render)
		if err != nil {
			return nil, err
		}
		out[i] = values
	}
	return out, nil
}

// read mirrors the Sheets values API: trailing blank cells and rows are
// dropped, blank rows in the middle come back empty.
func (w *Workbook) read(a1 string, render destination.Render) ([][]interface{}, error) {
	a, err := parseRange(a1)
	if err != nil {
		return nil, err
	}
	if !w.hasSheet(a.sheet) {
		return nil, fmt.Errorf("%w: %s", destination.ErrSheetNotFound, a.sheet)
	}

	rows, err := w.file.GetRows(a.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	endRow := a.endRow
	if endRow == 0 || endRow > len(rows) {
		endRow = len(rows)
	}

	var out [][]interface{}
	for r := a.startRow; r <= endRow; r++ {
		src := rows[r-1]
		endCol := a.endCol
		if endCol == 0 || endCol > len(src) {
			endCol = len(src)
		}
		var row []interface{}
		for c := a.startCol; c <= endCol; c++ {
			v := src[c-1]
			if render == destination.RenderFormula {
				v = w.formula(a.sheet, c, r, v)
			}
			row = append(row, v)
		}
		out = append(out, trimRow(row))
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (w *Workbook) formula(sheet string, col, row int, value string) string {
	cell := cellName(col, row)
	if ok, url, _ := w.file.GetCellHyperLink(sheet, cell); ok && url != "" {
		return mapping.LinkCell(value, url)
	}
	if f, _ := w.file.GetCellFormula(sheet, cell); f != "" {
		return "=" + f
	}
	return value
}

func trimRow(row []interface{}) []interface{} {
	end := len(row)
	for end > 0 && row[end-1] == "" {
		end--
	}
	return row[:end]
}

func (w *Workbook) BatchUpdateValues(_ context.Context, _ string, data []destination.ValueRange) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, d := range data {
		a, err := parseRange(d.Range)
		if err != nil {
			return err
		}
		if !w.hasSheet(a.sheet) {
			if _, err := w.file.NewSheet(a.sheet); err != nil {
				return fmt.Errorf("failed to add sheet: %w", err)
			}
		}
		for i, row := range d.Values {
			for j, v := range row {
				if err := w.setCell(a.sheet, a.startCol+j, a.startRow+i, destination.CellString(v)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// setCell interprets input like a user typing into the cell: a leading
// apostrophe forces text, HYPERLINK formulas become linked labels and other
// formulas are stored as formulas.
func (w *Workbook) setCell(sheet string, col, row int, input string) error {
	cell := cellName(col, row)
	if ok, _, _ := w.file.GetCellHyperLink(sheet, cell); ok {
		if err := w.file.SetCellHyperLink(sheet, cell, "", "None"); err != nil {
			return fmt.Errorf("failed to clear link %s: %w", cell, err)
		}
	}

	switch {
	case strings.HasPrefix(input, "'"):
		return w.file.SetCellStr(sheet, cell, input[1:])
	case strings.HasPrefix(input, "="):
		if url, label, ok := mapping.ParseHyperlink(input); ok {
			if err := w.file.SetCellStr(sheet, cell, label); err != nil {
				return err
			}
			return w.file.SetCellHyperLink(sheet, cell, url, "External")
		}
		return w.file.SetCellFormula(sheet, cell, input[1:])
	default:
		return w.file.SetCellStr(sheet, cell, input)
	}
}
