package workbook

import (
	"context"
	"fmt"
	"strings"

	"upwork_sheet_sync/internal/destination"

	"github.com/xuri/excelize/v2"
)

func (w *Workbook) sheetName(id int64) (string, error) {
	list := w.file.GetSheetList()
	if id < 0 || int(id) >= len(list) {
		return "", fmt.Errorf("%w: id %d", destination.ErrSheetNotFound, id)
	}
	return list[id], nil
}

// SheetID is the tab's position in the workbook.
func (w *Workbook) SheetID(_ context.Context, _, title string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, name := range w.file.GetSheetList() {
		if name == title {
			return int64(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %s", destination.ErrSheetNotFound, title)
}

func (w *Workbook) FirstSheetID(_ context.Context, _ string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.file.GetSheetList()) == 0 {
		return 0, destination.ErrSheetNotFound
	}
	return 0, nil
}

// CopySheetFrom duplicates a tab of this same workbook. Other workbooks are
// not reachable from a local file.
func (w *Workbook) CopySheetFrom(_ context.Context, srcSpreadsheetID string, srcSheetID int64, _ string) (int64, error) {
	if srcSpreadsheetID != w.ID() {
		return 0, fmt.Errorf("%w: copy from %s", destination.ErrUnsupported, srcSpreadsheetID)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	src, err := w.sheetName(srcSheetID)
	if err != nil {
		return 0, err
	}
	name := "Copy of " + src
	for n := 2; w.hasSheet(name); n++ {
		name = fmt.Sprintf("Copy of %s %d", src, n)
	}
	to, err := w.file.NewSheet(name)
	if err != nil {
		return 0, fmt.Errorf("failed to add sheet: %w", err)
	}
	from, err := w.file.GetSheetIndex(src)
	if err != nil {
		return 0, err
	}
	if err := w.file.CopySheet(from, to); err != nil {
		return 0, fmt.Errorf("failed to copy sheet: %w", err)
	}
	return int64(len(w.file.GetSheetList()) - 1), nil
}

func (w *Workbook) RenameSheet(_ context.Context, _ string, sheetID int64, title string, hidden bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	name, err := w.sheetName(sheetID)
	if err != nil {
		return err
	}
	if name != title {
		if err := w.file.SetSheetName(name, title); err != nil {
			return fmt.Errorf("failed to rename sheet: %w", err)
		}
	}
	return w.file.SetSheetVisible(title, !hidden)
}

func (w *Workbook) DeleteSheet(_ context.Context, _ string, sheetID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	name, err := w.sheetName(sheetID)
	if err != nil {
		return err
	}
	return w.file.DeleteSheet(name)
}

// CopyPaste tiles the source rectangle over the destination, copying one
// aspect of the cells per call.
func (w *Workbook) CopyPaste(_ context.Context, _ string, src, dst destination.GridRange, pasteType destination.PasteType) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	srcSheet, err := w.sheetName(src.SheetID)
	if err != nil {
		return err
	}
	dstSheet, err := w.sheetName(dst.SheetID)
	if err != nil {
		return err
	}
	height := src.EndRow - src.StartRow
	width := src.EndColumn - src.StartColumn
	if height <= 0 || width <= 0 {
		return nil
	}

	switch pasteType {
	case destination.PasteFormat:
		return w.pasteStyles(srcSheet, dstSheet, src, dst, height, width)
	case destination.PasteDataValidation:
		return w.pasteValidations(srcSheet, dstSheet, src, dst, height, width)
	case destination.PasteConditionalFormatting:
		return w.pasteConditionalFormats(srcSheet, dstSheet, src, dst, height)
	default:
		return fmt.Errorf("%w: paste type %s", destination.ErrUnsupported, pasteType)
	}
}

func (w *Workbook) pasteStyles(srcSheet, dstSheet string, src, dst destination.GridRange, height, width int64) error {
	for r := dst.StartRow; r < dst.EndRow; r++ {
		sr := src.StartRow + (r-dst.StartRow)%height
		for c := dst.StartColumn; c < dst.EndColumn; c++ {
			sc := src.StartColumn + (c-dst.StartColumn)%width
			style, err := w.file.GetCellStyle(srcSheet, cellName(int(sc)+1, int(sr)+1))
			if err != nil {
				return err
			}
			cell := cellName(int(c)+1, int(r)+1)
			if err := w.file.SetCellStyle(dstSheet, cell, cell, style); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Workbook) pasteValidations(srcSheet, dstSheet string, src, dst destination.GridRange, height, width int64) error {
	rules, err := w.file.GetDataValidations(srcSheet)
	if err != nil {
		return err
	}
	for _, rule := range rules {
		for c := dst.StartColumn; c < dst.EndColumn; c++ {
			sc := src.StartColumn + (c-dst.StartColumn)%width
			var cells []string
			for r := dst.StartRow; r < dst.EndRow; r++ {
				sr := src.StartRow + (r-dst.StartRow)%height
				if sqrefCovers(rule.Sqref, int(sc)+1, int(sr)+1) {
					cells = append(cells, cellName(int(c)+1, int(r)+1))
				}
			}
			if len(cells) == 0 {
				continue
			}
			copied := *rule
			copied.Sqref = strings.Join(cells, " ")
			if err := w.file.AddDataValidation(dstSheet, &copied); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Workbook) pasteConditionalFormats(srcSheet, dstSheet string, src, dst destination.GridRange, height int64) error {
	formats, err := w.file.GetConditionalFormats(srcSheet)
	if err != nil {
		return err
	}
	for sqref, opts := range formats {
		for r := dst.StartRow; r < dst.EndRow; r++ {
			sr := src.StartRow + (r-dst.StartRow)%height
			for c := dst.StartColumn; c < dst.EndColumn; c++ {
				if !sqrefCovers(sqref, int(c)+1, int(sr)+1) {
					continue
				}
				cell := cellName(int(c)+1, int(r)+1)
				if err := w.file.SetConditionalFormat(dstSheet, cell+":"+cell, opts); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (w *Workbook) SetBackground(_ context.Context, _ string, ranges []destination.GridRange, color destination.Color) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hex := fmt.Sprintf("%02X%02X%02X", channel(color.Red), channel(color.Green), channel(color.Blue))
	for _, g := range ranges {
		sheet, err := w.sheetName(g.SheetID)
		if err != nil {
			return err
		}
		for r := g.StartRow; r < g.EndRow; r++ {
			for c := g.StartColumn; c < g.EndColumn; c++ {
				cell := cellName(int(c)+1, int(r)+1)
				if err := w.restyle(sheet, cell, func(s *excelize.Style) {
					s.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{hex}}
				}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (w *Workbook) StyleHeaderRow(_ context.Context, _ string, sheetID int64, columns int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	sheet, err := w.sheetName(sheetID)
	if err != nil {
		return err
	}
	for c := 1; c <= columns; c++ {
		if err := w.restyle(sheet, cellName(c, 1), func(s *excelize.Style) {
			if s.Font == nil {
				s.Font = &excelize.Font{}
			}
			s.Font.Bold = true
		}); err != nil {
			return err
		}
	}
	return w.file.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// ValidationValues returns the list choices of the first validation rule
// covering the cell.
func (w *Workbook) ValidationValues(_ context.Context, _, a1 string) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	a, err := parseRange(a1)
	if err != nil {
		return nil, err
	}
	rules, err := w.file.GetDataValidations(a.sheet)
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		if rule.Type != "list" || !sqrefCovers(rule.Sqref, a.startCol, a.startRow) {
			continue
		}
		return splitListFormula(rule.Formula1), nil
	}
	return nil, nil
}

func (w *Workbook) restyle(sheet, cell string, edit func(*excelize.Style)) error {
	id, err := w.file.GetCellStyle(sheet, cell)
	if err != nil {
		return err
	}
	style, err := w.file.GetStyle(id)
	if err != nil || style == nil {
		style = &excelize.Style{}
	}
	edit(style)
	newID, err := w.file.NewStyle(style)
	if err != nil {
		return err
	}
	return w.file.SetCellStyle(sheet, cell, cell, newID)
}

func splitListFormula(formula string) []string {
	formula = strings.TrimPrefix(formula, "<formula1>")
	formula = strings.TrimSuffix(formula, "</formula1>")
	formula = strings.ReplaceAll(formula, "&quot;", `"`)
	formula = strings.Trim(formula, `"`)
	if formula == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(formula, ",") {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}

func channel(v float64) int {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return int(v*255 + 0.5)
}
