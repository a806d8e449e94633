package template

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/retry"
	"upwork_sheet_sync/internal/schema"

	"github.com/rs/zerolog/log"
)

// TemplateSheet keeps a hidden copy of the reference workbook's first tab
// in the destination workbook and copies its row 2.
type TemplateSheet struct {
	Sheet                  destination.Spreadsheet
	ReferenceSpreadsheetID string
	Title                  string
	Clone                  retry.Config

	refreshed map[string]bool
}

func (s *TemplateSheet) Name() string { return "template-sheet" }

func (s *TemplateSheet) Apply(ctx context.Context, sc destination.SheetContext, rows []int, columns int) error {
	templateID, err := s.Ensure(ctx, sc.SpreadsheetID, false)
	if err != nil {
		return err
	}

	if sc.Bidder != "" && !s.refreshed[sc.SpreadsheetID] {
		stale, err := s.missingBidder(ctx, sc)
		if err != nil {
			log.Debug().Err(err).Msg("Could not read template bidder choices")
		}
		if stale {
			log.Info().Str("bidder", sc.Bidder).Msg("Template lacks bidder choice, re-cloning template")
			if templateID, err = s.Ensure(ctx, sc.SpreadsheetID, true); err != nil {
				return err
			}
		}
	}

	targetID, err := s.Sheet.SheetID(ctx, sc.SpreadsheetID, sc.TabName)
	if err != nil {
		return err
	}
	return pasteRows(ctx, s.Sheet, sc.SpreadsheetID, templateID, targetID, rows, columns)
}

// Ensure returns the id of the hidden template tab, cloning it from the
// reference workbook when it is missing or when forceRefresh replaces it.
func (s *TemplateSheet) Ensure(ctx context.Context, spreadsheetID string, forceRefresh bool) (int64, error) {
	existing, err := s.Sheet.SheetID(ctx, spreadsheetID, s.Title)
	switch {
	case err == nil && !forceRefresh:
		return existing, nil
	case err == nil:
		if err := s.Sheet.DeleteSheet(ctx, spreadsheetID, existing); err != nil {
			return 0, fmt.Errorf("failed to delete stale template: %w", err)
		}
	case !errors.Is(err, destination.ErrSheetNotFound):
		return 0, err
	}

	log.Debug().Str("reference", s.ReferenceSpreadsheetID).Msg("Cloning template sheet")
	templateID, err := retry.WithRetry(ctx, s.Clone, func(ctx context.Context) (int64, error) {
		refID, err := s.Sheet.FirstSheetID(ctx, s.ReferenceSpreadsheetID)
		if err != nil {
			return 0, err
		}
		return s.Sheet.CopySheetFrom(ctx, s.ReferenceSpreadsheetID, refID, spreadsheetID)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clone template: %w", err)
	}
	if err := s.Sheet.RenameSheet(ctx, spreadsheetID, templateID, s.Title, true); err != nil {
		return 0, fmt.Errorf("failed to hide template: %w", err)
	}

	if s.refreshed == nil {
		s.refreshed = make(map[string]bool)
	}
	s.refreshed[spreadsheetID] = true
	log.Info().Int64("sheet_id", templateID).Str("title", s.Title).Msg("Template sheet ready")
	return templateID, nil
}

// missingBidder reports whether the template's Bidder dropdown exists and
// lacks the current bidder.
func (s *TemplateSheet) missingBidder(ctx context.Context, sc destination.SheetContext) (bool, error) {
	header, err := schema.Resolve(ctx, s.Sheet, sc.SpreadsheetID, s.Title)
	if err != nil {
		return false, err
	}
	col := header.Column(schema.Bidder)
	if col == "" {
		return false, nil
	}
	choices, err := s.Sheet.ValidationValues(ctx, sc.SpreadsheetID, schema.CellRange(s.Title, col, templateRow+1))
	if err != nil {
		return false, err
	}
	return len(choices) > 0 && !slices.Contains(choices, sc.Bidder), nil
}
