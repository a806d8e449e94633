package reconcile

import (
	"context"
	"sort"
	"strings"

	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/inventory"
	"upwork_sheet_sync/internal/records"
	"upwork_sheet_sync/internal/schema"
	"upwork_sheet_sync/internal/syncerr"
)

// ViewedColor is the Read cell highlight for proposals the client opened.
var ViewedColor = destination.Color{Red: 0.8, Green: 0.95, Blue: 0.8}

// MarkViewed highlights the Read cell of every row whose proposal the client
// has viewed. Nothing else on the row changes.
func (r *Reconciler) MarkViewed(ctx context.Context, sc destination.SheetContext, events []records.ProposalViewEvent) (*Result, error) {
	o := r.begin(OpMarkViewed, sc)

	var viewed []records.ProposalViewEvent
	for _, e := range events {
		if e.Viewed {
			viewed = append(viewed, e)
		}
	}
	o.result.Candidates = len(viewed)
	if len(viewed) == 0 {
		return o.finish(ctx, noMatch(OpMarkViewed, "no viewed proposals in input"))
	}

	s, err := o.resolve(ctx)
	if err != nil {
		return o.finish(ctx, err)
	}
	if err := s.Require(OpMarkViewed, schema.Read); err != nil {
		return o.finish(ctx, err)
	}

	var ids, names *inventory.KeyRowMap
	matched := make(map[int]bool)
	for _, e := range viewed {
		var row int
		var ok bool
		if id := strings.TrimSpace(e.ProposalID); id != "" {
			if ids == nil {
				if ids, err = o.keyMap(ctx, schema.ProposalID); err != nil {
					return o.finish(ctx, err)
				}
			}
			row, ok = ids.Lookup(id)
		} else if title := records.NormalizeName(e.Title); title != "" {
			if names == nil {
				if names, err = o.keyMap(ctx, schema.JobName); err != nil {
					return o.finish(ctx, err)
				}
			}
			row, ok = names.Lookup(title)
		}
		if !ok {
			o.result.Missing++
			continue
		}
		matched[row] = true
	}

	rows := make([]int, 0, len(matched))
	for row := range matched {
		rows = append(rows, row)
	}
	sort.Ints(rows)
	if len(rows) == 0 {
		return o.finish(ctx, noMatch(OpMarkViewed, "no viewed proposal matched a row"))
	}

	sheetID, err := readWith(ctx, o, "resolve sheet id", func(ctx context.Context) (int64, error) {
		return r.sheet.SheetID(ctx, o.sc.SpreadsheetID, o.sc.TabName)
	})
	if err != nil {
		return o.finish(ctx, err)
	}

	col := int64(s.Index(schema.Read) - 1)
	ranges := make([]destination.GridRange, len(rows))
	for i, row := range rows {
		ranges[i] = destination.GridRange{
			SheetID:     sheetID,
			StartRow:    int64(row - 1),
			EndRow:      int64(row),
			StartColumn: col,
			EndColumn:   col + 1,
		}
	}

	o.logger.Debug().Ints("rows", rows).Msg("Highlighting read cells")
	err = r.sheet.SetBackground(ctx, o.sc.SpreadsheetID, ranges, ViewedColor)
	if err != nil {
		return o.finish(ctx, syncerr.Classify("highlight read cells", err))
	}
	o.result.Updated = len(rows)
	o.result.UpdatedRows = rows
	return o.finish(ctx, nil)
}
