package reconcile

import (
	"context"

	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/retry"
	"upwork_sheet_sync/internal/schema"
	"upwork_sheet_sync/internal/syncerr"
)

// Batch queues every cell and row write of one pass so they reach the
// destination in a single request.
type Batch struct {
	tab  string
	data []destination.ValueRange
}

func NewBatch(tab string) *Batch {
	return &Batch{tab: schema.NormalizeTabName(tab)}
}

// Row queues a full row starting at column A.
func (b *Batch) Row(row int, cells []interface{}) {
	b.data = append(b.data, destination.ValueRange{
		Range:  schema.RowRange(b.tab, row, len(cells)),
		Values: [][]interface{}{cells},
	})
}

// Cell queues one cell. Blank column letters are ignored.
func (b *Batch) Cell(column string, row int, value interface{}) {
	if column == "" {
		return
	}
	b.data = append(b.data, destination.ValueRange{
		Range:  schema.CellRange(b.tab, column, row),
		Values: [][]interface{}{{value}},
	})
}

func (b *Batch) Len() int {
	return len(b.data)
}

func (b *Batch) Data() []destination.ValueRange {
	return b.data
}

// WriteBatch flushes the batch in one call. An empty batch succeeds without
// touching the destination. Failures carry the destination status code.
func WriteBatch(ctx context.Context, values destination.Values, cfg retry.Config, spreadsheetID string, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		return values.BatchUpdateValues(ctx, spreadsheetID, b.data)
	})
	if err != nil {
		return syncerr.Classify("write batch", err)
	}
	return nil
}
