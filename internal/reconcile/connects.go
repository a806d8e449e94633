package reconcile

import (
	"context"
	"strings"

	"upwork_sheet_sync/internal/config"
	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/inventory"
	"upwork_sheet_sync/internal/mapping"
	"upwork_sheet_sync/internal/records"
	"upwork_sheet_sync/internal/schema"
	"upwork_sheet_sync/internal/syncerr"
)

// SyncConnects aggregates connects entries per job and writes the totals.
// Existing rows get the Bidder and the connects columns; unknown jobs get a
// full row with no proposal id.
func (r *Reconciler) SyncConnects(ctx context.Context, sc destination.SheetContext, entries []records.ConnectsEntry) (*Result, error) {
	o := r.begin(OpSyncConnects, sc)
	totals := records.AggregateConnects(entries)
	o.result.Candidates = len(totals)
	if len(totals) == 0 {
		return o.finish(ctx, noMatch(OpSyncConnects, "no connects entries in input"))
	}

	s, err := o.resolve(ctx)
	if err != nil {
		return o.finish(ctx, err)
	}
	cmap, err := readWith(ctx, o, "build connects map", func(ctx context.Context) (*inventory.ConnectsRowMap, error) {
		return inventory.LoadConnectsRowMap(ctx, r.sheet, o.sc.SpreadsheetID, o.sc.TabName, s)
	})
	if err != nil {
		return o.finish(ctx, err)
	}

	if !cmap.HasBoostedColumns() {
		for _, t := range totals {
			if t.NeedsBoostedColumns() {
				return o.finish(ctx, syncerr.New(syncerr.KindMissingBoostedColumns, OpSyncConnects,
					"job "+t.Key+" has boosted connects but the sheet has no boosted columns"))
			}
		}
	}

	var names *inventory.KeyRowMap
	for _, t := range totals {
		if t.JobID == "" {
			if names, err = o.keyMap(ctx, schema.JobName); err != nil {
				return o.finish(ctx, err)
			}
			break
		}
	}

	ids, err := o.keyMap(ctx, schema.JobID)
	if err != nil {
		return o.finish(ctx, err)
	}
	o.noteDuplicates(ids)

	batch := NewBatch(o.sc.TabName)
	bidderCol := s.Column(schema.Bidder)
	var fresh []records.ConnectsTotal
	for _, t := range totals {
		existing, ok := r.connectsRow(cmap, names, t)
		if !ok {
			fresh = append(fresh, t)
			continue
		}
		if o.sc.Bidder != "" {
			batch.Cell(bidderCol, existing.RowIndex, o.sc.Bidder)
		}
		queueConnects(batch, cmap.Columns, existing, r.merge(t, existing))
		o.result.Updated++
		o.result.UpdatedRows = append(o.result.UpdatedRows, existing.RowIndex)
	}

	if len(fresh) > 0 {
		inv, err := o.scan(ctx)
		if err != nil {
			return o.finish(ctx, err)
		}
		alloc := inv.Allocator()
		for _, t := range fresh {
			row, _ := alloc.Next()
			cells := mapping.MapRow(s, mapping.FromConnects(t, o.sc.Bidder))
			inv.Overlay(row, cells)
			batch.Row(row, cells)
			o.result.NewRows = append(o.result.NewRows, row)
		}
		o.result.Added = len(o.result.NewRows)
		o.result.NextRowIndex = alloc.NextRowIndex()
	}

	if err := o.write(ctx, batch); err != nil {
		return o.finish(ctx, err)
	}
	o.format(ctx, o.result.NewRows)
	return o.finish(ctx, o.verify(ctx, ids))
}

func (r *Reconciler) connectsRow(cmap *inventory.ConnectsRowMap, names *inventory.KeyRowMap, t records.ConnectsTotal) (inventory.ConnectsRow, bool) {
	if t.JobID != "" {
		row, ok := cmap.ByJobID[t.JobID]
		return row, ok
	}
	idx, ok := names.Lookup(strings.TrimSpace(t.Name))
	if !ok {
		return inventory.ConnectsRow{}, false
	}
	return cmap.Row(idx), true
}

// merge returns the amounts to write for an existing row. In replace mode
// the batch totals are authoritative; accumulate adds them to the amounts
// already in the row.
func (r *Reconciler) merge(t records.ConnectsTotal, existing inventory.ConnectsRow) records.ConnectsTotal {
	if r.connectsMode != config.ConnectsAccumulate {
		return t
	}
	t.Spent += mapping.ParseConnects(existing.Spent)
	t.Refund += mapping.ParseConnects(existing.Refund)
	t.BoostedSpent += mapping.ParseConnects(existing.BoostedSpent)
	t.BoostedRefund += mapping.ParseConnects(existing.BoostedRefund)
	return t
}

func queueConnects(b *Batch, cols inventory.ConnectsColumns, row inventory.ConnectsRow, t records.ConnectsTotal) {
	b.Cell(cols.Spent, row.RowIndex, mapping.ConnectsCell(t.Spent, mapping.Spent))
	b.Cell(cols.Refund, row.RowIndex, mapping.ConnectsCell(t.Refund, mapping.Refund))
	b.Cell(cols.BoostedSpent, row.RowIndex, mapping.ConnectsCell(t.BoostedSpent, mapping.Spent))
	b.Cell(cols.BoostedRefund, row.RowIndex, mapping.ConnectsCell(t.BoostedRefund, mapping.Refund))
}
