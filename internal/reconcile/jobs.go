package reconcile

import (
	"context"
	"strings"

	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/inventory"
	"upwork_sheet_sync/internal/mapping"
	"upwork_sheet_sync/internal/records"
	"upwork_sheet_sync/internal/schema"

	"golang.org/x/sync/errgroup"
)

// RefreshColumns are the only columns a job refresh may write on an
// existing row.
var RefreshColumns = []string{
	schema.Date,
	schema.Bidder,
	schema.Invites,
	schema.Interview,
	schema.Payment,
	schema.Country,
	schema.JobCreatedSince,
	schema.Proposals,
}

// jobIndex resolves a job to an existing row by id, then by link, then by
// name. Maps that were not loaded are skipped.
type jobIndex struct {
	ids   *inventory.KeyRowMap
	links *inventory.KeyRowMap
	names *inventory.KeyRowMap
}

func (ix jobIndex) lookup(job records.Job) (int, bool) {
	if id := strings.TrimSpace(job.JobID); id != "" {
		return ix.ids.Lookup(id)
	}
	if row, ok := ix.links.Lookup(strings.TrimSpace(job.Link)); ok {
		return row, true
	}
	return ix.names.Lookup(records.NormalizeName(job.Name))
}

func needsKeys(jobs []records.Job) (byID, byName bool) {
	for _, j := range jobs {
		if strings.TrimSpace(j.JobID) != "" {
			byID = true
		} else {
			byName = true
		}
	}
	return byID, byName
}

// AddJobs writes a new row for every job whose key is not already in the
// sheet. Jobs that exist are skipped, never merged.
func (r *Reconciler) AddJobs(ctx context.Context, sc destination.SheetContext, jobs []records.Job) (*Result, error) {
	o := r.begin(OpAddJobs, sc)
	jobs = records.DedupeJobs(jobs)
	o.result.Candidates = len(jobs)
	if len(jobs) == 0 {
		return o.finish(ctx, noMatch(OpAddJobs, "no jobs in input"))
	}

	s, err := o.resolve(ctx)
	if err != nil {
		return o.finish(ctx, err)
	}

	byID, byName := needsKeys(jobs)
	var ix jobIndex
	if byID || s.Has(schema.JobID) {
		if ix.ids, err = o.keyMap(ctx, schema.JobID); err != nil {
			return o.finish(ctx, err)
		}
	}
	if byName {
		if ix.names, err = o.keyMap(ctx, schema.JobName); err != nil {
			return o.finish(ctx, err)
		}
	}
	o.noteDuplicates(ix.ids)

	inv, err := o.scan(ctx)
	if err != nil {
		return o.finish(ctx, err)
	}

	alloc := inv.Allocator()
	batch := NewBatch(o.sc.TabName)
	for _, job := range jobs {
		if row, ok := ix.lookup(job); ok {
			o.logger.Debug().Str("job_id", job.JobID).Int("row", row).Msg("Job already in sheet")
			o.result.Skipped++
			continue
		}
		row, fromPool := alloc.Next()
		cells := mapping.MapRow(s, mapping.FromJob(job, o.sc.Bidder))
		inv.Overlay(row, cells)
		batch.Row(row, cells)
		o.result.NewRows = append(o.result.NewRows, row)
		o.logger.Debug().Str("job_id", job.JobID).Int("row", row).Bool("reused", fromPool).Msg("Queued new job row")
	}
	o.result.Added = len(o.result.NewRows)
	o.result.NextRowIndex = alloc.NextRowIndex()

	if o.result.Added == 0 {
		return o.finish(ctx, noMatch(OpAddJobs, "every job is already in the sheet"))
	}
	if err := o.write(ctx, batch); err != nil {
		return o.finish(ctx, err)
	}
	o.format(ctx, o.result.NewRows)
	return o.finish(ctx, o.verify(ctx, ix.ids))
}

// RefreshJobs updates the refresh columns of jobs that already have a row.
// Empty incoming values never blank a cell, and unknown jobs are counted as
// missing rather than created.
func (r *Reconciler) RefreshJobs(ctx context.Context, sc destination.SheetContext, jobs []records.Job) (*Result, error) {
	o := r.begin(OpRefreshJobs, sc)
	jobs = records.DedupeJobs(jobs)
	o.result.Candidates = len(jobs)
	if len(jobs) == 0 {
		return o.finish(ctx, noMatch(OpRefreshJobs, "no jobs in input"))
	}

	s, err := o.resolve(ctx)
	if err != nil {
		return o.finish(ctx, err)
	}
	ix, err := o.jobIndex(ctx, jobs)
	if err != nil {
		return o.finish(ctx, err)
	}

	batch := NewBatch(o.sc.TabName)
	for _, job := range jobs {
		row, ok := ix.lookup(job)
		if !ok {
			o.result.Missing++
			o.logger.Debug().Str("job_id", job.JobID).Str("name", job.Name).Msg("Job not in sheet")
			continue
		}
		if queueRefresh(batch, s, row, mapping.FromJob(job, o.sc.Bidder), nil) > 0 {
			o.result.Updated++
			o.result.UpdatedRows = append(o.result.UpdatedRows, row)
		} else {
			o.result.Skipped++
		}
	}

	if batch.Len() == 0 {
		return o.finish(ctx, noMatch(OpRefreshJobs, "no job matched a row with new values"))
	}
	return o.finish(ctx, o.write(ctx, batch))
}

// jobIndex loads the maps needed to find the given jobs: Job ID for jobs
// with an id, the Job Name links and labels for the rest.
func (o *run) jobIndex(ctx context.Context, jobs []records.Job) (jobIndex, error) {
	var ix jobIndex
	var err error
	byID, byName := needsKeys(jobs)
	if byID {
		if ix.ids, err = o.keyMap(ctx, schema.JobID); err != nil {
			return ix, err
		}
	}
	if byName {
		if ix.links, err = o.linkMap(ctx); err != nil {
			return ix, err
		}
		if ix.names, err = o.keyMap(ctx, schema.JobName); err != nil {
			return ix, err
		}
	}
	return ix, nil
}

// queueRefresh queues the non-empty refresh values for one row, skipping
// the headers in keep. It returns the number of cells queued.
func queueRefresh(b *Batch, s *schema.Schema, row int, f mapping.Fields, keep map[string]bool) int {
	queued := 0
	for _, h := range RefreshColumns {
		if keep[h] {
			continue
		}
		col := s.Column(h)
		value := f.Cell(h, 1)
		if col == "" || value == "" {
			continue
		}
		b.Cell(col, row, value)
		queued++
	}
	return queued
}

// SyncJobs upserts a batch: jobs with a row get their refresh columns
// updated, the rest get full rows in the next free slots. Everything is
// written in one batch.
func (r *Reconciler) SyncJobs(ctx context.Context, sc destination.SheetContext, jobs []records.Job) (*Result, error) {
	o := r.begin(OpSyncJobs, sc)
	return r.upsert(ctx, o, records.DedupeJobs(jobs), false)
}

// SendJob upserts a single job. On an existing row the Date and Job Created
// Since cells keep any value they already have.
func (r *Reconciler) SendJob(ctx context.Context, sc destination.SheetContext, job records.Job) (*Result, error) {
	o := r.begin(OpSendJob, sc)
	var jobs []records.Job
	if job.Key() != "" {
		jobs = append(jobs, job)
	}
	return r.upsert(ctx, o, jobs, true)
}

func (r *Reconciler) upsert(ctx context.Context, o *run, jobs []records.Job, preserve bool) (*Result, error) {
	o.result.Candidates = len(jobs)
	if len(jobs) == 0 {
		return o.finish(ctx, noMatch(o.result.Operation, "no jobs in input"))
	}

	s, err := o.resolve(ctx)
	if err != nil {
		return o.finish(ctx, err)
	}
	ix, err := o.jobIndex(ctx, jobs)
	if err != nil {
		return o.finish(ctx, err)
	}
	if ix.ids == nil && s.Has(schema.JobID) {
		if ix.ids, err = o.keyMap(ctx, schema.JobID); err != nil {
			return o.finish(ctx, err)
		}
	}
	o.noteDuplicates(ix.ids)

	batch := NewBatch(o.sc.TabName)
	var fresh []records.Job
	for _, job := range jobs {
		row, ok := ix.lookup(job)
		if !ok {
			fresh = append(fresh, job)
			continue
		}
		var keep map[string]bool
		if preserve {
			if keep, err = o.filledCells(ctx, row, schema.Date, schema.JobCreatedSince); err != nil {
				return o.finish(ctx, err)
			}
		}
		if queueRefresh(batch, s, row, mapping.FromJob(job, o.sc.Bidder), keep) > 0 {
			o.result.Updated++
			o.result.UpdatedRows = append(o.result.UpdatedRows, row)
		} else {
			o.result.Skipped++
		}
	}

	if len(fresh) > 0 {
		inv, err := o.scan(ctx)
		if err != nil {
			return o.finish(ctx, err)
		}
		alloc := inv.Allocator()
		for _, job := range fresh {
			row, fromPool := alloc.Next()
			cells := mapping.MapRow(s, mapping.FromJob(job, o.sc.Bidder))
			inv.Overlay(row, cells)
			batch.Row(row, cells)
			o.result.NewRows = append(o.result.NewRows, row)
			o.logger.Debug().Str("job_id", job.JobID).Int("row", row).Bool("reused", fromPool).Msg("Queued new job row")
		}
		o.result.Added = len(o.result.NewRows)
		o.result.NextRowIndex = alloc.NextRowIndex()
	}

	if batch.Len() == 0 {
		return o.finish(ctx, noMatch(o.result.Operation, "every job row is already up to date"))
	}
	if err := o.write(ctx, batch); err != nil {
		return o.finish(ctx, err)
	}
	o.format(ctx, o.result.NewRows)
	return o.finish(ctx, o.verify(ctx, ix.ids))
}

// filledCells reads the named cells of one row concurrently and reports
// which of them already hold a value.
func (o *run) filledCells(ctx context.Context, row int, headers ...string) (map[string]bool, error) {
	filled := make([]bool, len(headers))
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range headers {
		col := o.schema.Column(h)
		if col == "" {
			continue
		}
		i := i
		g.Go(func() error {
			values, err := readWith(gctx, o, "read cell", func(ctx context.Context) ([][]interface{}, error) {
				return o.r.sheet.GetValues(ctx, o.sc.SpreadsheetID, schema.CellRange(o.sc.TabName, col, row), destination.RenderFormatted)
			})
			if err != nil {
				return err
			}
			filled[i] = len(values) > 0 && len(values[0]) > 0 && strings.TrimSpace(destination.CellString(values[0][0])) != ""
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	keep := make(map[string]bool)
	for i, h := range headers {
		if filled[i] {
			keep[h] = true
		}
	}
	return keep, nil
}
