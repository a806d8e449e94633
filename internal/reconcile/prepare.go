package reconcile

import (
	"context"

	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/schema"
)

// PrepareSheet writes the default header row, styles it and makes sure the
// hidden template tab exists. Header differences are logged before they are
// overwritten.
func (r *Reconciler) PrepareSheet(ctx context.Context, sc destination.SheetContext) (*Result, error) {
	o := r.begin(OpPrepareSheet, sc)

	current, err := readWith(ctx, o, "resolve headers", func(ctx context.Context) (*schema.Schema, error) {
		return schema.Resolve(ctx, r.sheet, o.sc.SpreadsheetID, o.sc.TabName)
	})
	if err != nil {
		return o.finish(ctx, err)
	}
	if len(current.Headers) > 0 {
		for _, m := range current.DefaultMismatches() {
			o.logger.Warn().Str("mismatch", m).Msg("Replacing header")
		}
	}

	headers := make([]interface{}, len(schema.DefaultHeaders))
	for i, h := range schema.DefaultHeaders {
		headers[i] = h
	}
	batch := NewBatch(o.sc.TabName)
	batch.Row(1, headers)
	if err := o.write(ctx, batch); err != nil {
		return o.finish(ctx, err)
	}
	o.schema = schema.New(schema.DefaultHeaders)
	o.result.Updated = 1
	o.result.UpdatedRows = []int{1}

	sheetID, err := readWith(ctx, o, "resolve sheet id", func(ctx context.Context) (int64, error) {
		return r.sheet.SheetID(ctx, o.sc.SpreadsheetID, o.sc.TabName)
	})
	if err != nil {
		return o.finish(ctx, err)
	}
	if err := r.sheet.StyleHeaderRow(ctx, o.sc.SpreadsheetID, sheetID, len(headers)); err != nil {
		o.result.FormattingSkipped = true
		o.result.FormattingError = err.Error()
		o.logger.Warn().Err(err).Msg("Header styling skipped")
	}

	if r.template != nil {
		if _, err := r.template.Ensure(ctx, o.sc.SpreadsheetID, false); err != nil {
			o.result.FormattingSkipped = true
			o.result.FormattingError = err.Error()
			o.logger.Warn().Err(err).Msg("Template sheet unavailable")
		}
	}
	return o.finish(ctx, nil)
}
