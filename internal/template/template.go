// Package template stamps the formatting, validation and conditional
// formatting of a template row onto newly written rows.
package template

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/schema"

	"github.com/rs/zerolog/log"
)

// templateRow is the zero-based index of the row every strategy copies from.
const templateRow = 1

// Strategy formats rows of the destination tab after their values are
// written.
type Strategy interface {
	Name() string
	Apply(ctx context.Context, sc destination.SheetContext, rows []int, columns int) error
}

// Chain tries each strategy in order until one succeeds.
type Chain struct {
	strategies []Strategy
}

func NewChain(primary Strategy, fallbacks ...Strategy) *Chain {
	return &Chain{strategies: append([]Strategy{primary}, fallbacks...)}
}

func (c *Chain) Names() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Apply returns the name of the strategy that formatted the rows.
func (c *Chain) Apply(ctx context.Context, sc destination.SheetContext, rows []int, columns int) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	var errs []error
	for _, s := range c.strategies {
		err := s.Apply(ctx, sc, rows, columns)
		if err == nil {
			log.Debug().Str("strategy", s.Name()).Ints("rows", rows).Msg("Applied row template")
			return s.Name(), nil
		}
		log.Debug().Err(err).Str("strategy", s.Name()).Msg("Row template strategy failed")
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return "", errors.Join(errs...)
}

// pasteRows copies row 2 of the source tab onto the target rows, grouping
// consecutive rows into one rectangle. The three paste types are issued
// independently so one failing does not stop the others.
func pasteRows(ctx context.Context, f destination.Formatter, spreadsheetID string, srcSheetID, dstSheetID int64, rows []int, columns int) error {
	width := int64(min(columns, schema.DefaultColumnCount))
	if width <= 0 {
		width = int64(schema.DefaultColumnCount)
	}
	src := destination.GridRange{SheetID: srcSheetID, StartRow: templateRow, EndRow: templateRow + 1, EndColumn: width}

	var errs []error
	for _, run := range runs(rows) {
		dst := destination.GridRange{SheetID: dstSheetID, StartRow: int64(run[0] - 1), EndRow: int64(run[1]), EndColumn: width}
		for _, p := range destination.PasteTypes {
			if err := f.CopyPaste(ctx, spreadsheetID, src, dst, p); err != nil {
				errs = append(errs, fmt.Errorf("rows %d-%d %s: %w", run[0], run[1], p, err))
			}
		}
	}
	return errors.Join(errs...)
}

// runs groups 1-based row indexes into inclusive [first, last] spans.
func runs(rows []int) [][2]int {
	sorted := append([]int(nil), rows...)
	sort.Ints(sorted)
	var out [][2]int
	for _, r := range sorted {
		if r < 1 {
			continue
		}
		if n := len(out); n > 0 && (r == out[n-1][1] || r == out[n-1][1]+1) {
			out[n-1][1] = r
			continue
		}
		out = append(out, [2]int{r, r})
	}
	return out
}
