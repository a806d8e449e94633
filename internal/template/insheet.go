package template

import (
	"context"

	"upwork_sheet_sync/internal/destination"
)

// InSheet copies row 2 of the destination tab itself.
type InSheet struct {
	Formatter destination.Formatter
}

func (s *InSheet) Name() string { return "in-sheet" }

func (s *InSheet) Apply(ctx context.Context, sc destination.SheetContext, rows []int, columns int) error {
	sheetID, err := s.Formatter.SheetID(ctx, sc.SpreadsheetID, sc.TabName)
	if err != nil {
		return err
	}
	var targets []int
	for _, r := range rows {
		if r != templateRow+1 {
			targets = append(targets, r)
		}
	}
	return pasteRows(ctx, s.Formatter, sc.SpreadsheetID, sheetID, sheetID, targets, columns)
}
