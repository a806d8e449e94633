// Package reconcile matches incoming records against the rows of a live
// sheet and decides, per record, between updating allow-listed columns of an
// existing row and writing a new row into the next free slot.
//
// Every operation re-reads headers, key columns and the row inventory; no
// row positions survive from one operation to the next.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"upwork_sheet_sync/internal/config"
	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/inventory"
	"upwork_sheet_sync/internal/notifications"
	"upwork_sheet_sync/internal/retry"
	"upwork_sheet_sync/internal/schema"
	"upwork_sheet_sync/internal/syncerr"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	OpAddJobs      = "add_jobs"
	OpRefreshJobs  = "refresh_jobs"
	OpSyncJobs     = "sync_jobs"
	OpSendJob      = "send_job"
	OpMarkViewed   = "mark_viewed"
	OpSyncConnects = "sync_connects"
	OpPrepareSheet = "prepare_sheet"
)

// RowFormatter stamps template formatting onto new rows and reports which
// strategy did it.
type RowFormatter interface {
	Apply(ctx context.Context, sc destination.SheetContext, rows []int, columns int) (string, error)
}

// TemplateEnsurer makes sure the hidden template tab exists.
type TemplateEnsurer interface {
	Ensure(ctx context.Context, spreadsheetID string, forceRefresh bool) (int64, error)
}

type Notifier interface {
	NotifyRun(ctx context.Context, summary notifications.RunSummary) error
}

type Options struct {
	Formatter        RowFormatter
	Template         TemplateEnsurer
	Resilience       config.ResilienceConfig
	ProtectedColumns []string
	ConnectsMode     string
	Notifier         Notifier
}

type Reconciler struct {
	sheet        destination.Spreadsheet
	formatter    RowFormatter
	template     TemplateEnsurer
	resilience   config.ResilienceConfig
	protected    []string
	connectsMode string
	notifier     Notifier
}

func New(sheet destination.Spreadsheet, opts Options) *Reconciler {
	protected := opts.ProtectedColumns
	if protected == nil {
		protected = []string{schema.JobStatus}
	}
	mode := opts.ConnectsMode
	if mode == "" {
		mode = config.ConnectsReplace
	}
	return &Reconciler{
		sheet:        sheet,
		formatter:    opts.Formatter,
		template:     opts.Template,
		resilience:   opts.Resilience,
		protected:    protected,
		connectsMode: mode,
		notifier:     opts.Notifier,
	}
}

// Result summarizes one operation. It is returned alongside errors that
// occur after the read phase, so callers can report what was written.
type Result struct {
	Operation   string
	OperationID string
	Tab         string

	Candidates int
	Added      int
	Updated    int
	Skipped    int
	Missing    int

	NewRows      []int
	UpdatedRows  []int
	NextRowIndex int

	FormattedWith     string
	FormattingSkipped bool
	FormattingError   string

	PreexistingDuplicates map[string]int
	NewDuplicates         map[string]int

	Duration time.Duration
}

func (r *Result) String() string {
	parts := []string{fmt.Sprintf("%s on %s", r.Operation, r.Tab)}
	if r.Added > 0 {
		parts = append(parts, fmt.Sprintf("%d added", r.Added))
	}
	if r.Updated > 0 {
		parts = append(parts, fmt.Sprintf("%d updated", r.Updated))
	}
	if r.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d already present", r.Skipped))
	}
	if r.Missing > 0 {
		parts = append(parts, fmt.Sprintf("%d not found", r.Missing))
	}
	if r.FormattingSkipped {
		parts = append(parts, "formatting skipped")
	}
	if len(r.NewDuplicates) > 0 {
		parts = append(parts, fmt.Sprintf("%d new duplicate keys", len(r.NewDuplicates)))
	}
	return strings.Join(parts, ", ")
}

// run carries the state of one operation.
type run struct {
	r      *Reconciler
	sc     destination.SheetContext
	result *Result
	logger zerolog.Logger
	start  time.Time
	schema *schema.Schema
}

func (r *Reconciler) begin(op string, sc destination.SheetContext) *run {
	sc.TabName = schema.NormalizeTabName(sc.TabName)
	sc.Bidder = strings.TrimSpace(sc.Bidder)
	id := uuid.NewString()
	o := &run{
		r:  r,
		sc: sc,
		result: &Result{
			Operation:   op,
			OperationID: id,
			Tab:         sc.TabName,
		},
		logger: log.With().Str("operation", op).Str("operation_id", id).Str("tab", sc.TabName).Logger(),
		start:  time.Now(),
	}
	o.logger.Debug().Str("spreadsheet_id", sc.SpreadsheetID).Msg("Starting operation")
	return o
}

// readWith runs a read under the read resilience profile. Failures are
// classified so a timeout stays distinct from an unreachable sheet.
func readWith[T any](ctx context.Context, o *run, op string, fn func(context.Context) (T, error)) (T, error) {
	v, err := retry.WithRetry(ctx, o.r.resilience.SheetRead, fn)
	if err != nil {
		return v, syncerr.Classify(op, err)
	}
	return v, nil
}

// resolve reads the header row. A tab without headers is addressed with
// the default layout.
func (o *run) resolve(ctx context.Context) (*schema.Schema, error) {
	s, err := readWith(ctx, o, "resolve headers", func(ctx context.Context) (*schema.Schema, error) {
		return schema.Resolve(ctx, o.r.sheet, o.sc.SpreadsheetID, o.sc.TabName)
	})
	if err != nil {
		return nil, err
	}
	if len(s.Headers) == 0 {
		o.logger.Warn().Msg("Header row is empty, using the default layout")
		s = schema.New(schema.DefaultHeaders)
	}
	o.schema = s
	return s, nil
}

func (o *run) keyMap(ctx context.Context, column string) (*inventory.KeyRowMap, error) {
	return readWith(ctx, o, "build key map", func(ctx context.Context) (*inventory.KeyRowMap, error) {
		return inventory.LoadKeyRowMap(ctx, o.r.sheet, o.sc.SpreadsheetID, o.sc.TabName, o.schema, column)
	})
}

func (o *run) linkMap(ctx context.Context) (*inventory.KeyRowMap, error) {
	return readWith(ctx, o, "build link map", func(ctx context.Context) (*inventory.KeyRowMap, error) {
		return inventory.LoadLinkRowMap(ctx, o.r.sheet, o.sc.SpreadsheetID, o.sc.TabName, o.schema)
	})
}

func (o *run) scan(ctx context.Context) (*inventory.Inventory, error) {
	return readWith(ctx, o, "scan rows", func(ctx context.Context) (*inventory.Inventory, error) {
		return inventory.Scan(ctx, o.r.sheet, o.sc.SpreadsheetID, o.sc.TabName, o.schema, o.r.protected)
	})
}

func (o *run) write(ctx context.Context, b *Batch) error {
	o.logger.Debug().Int("ranges", b.Len()).Msg("Writing batch")
	if err := WriteBatch(ctx, o.r.sheet, o.r.resilience.SheetWrite, o.sc.SpreadsheetID, b); err != nil {
		o.logger.Error().Err(err).Int("status_code", syncerr.StatusCode(err)).Msg("Batch write failed")
		return err
	}
	return nil
}

// format applies the row template to newly written rows. Values are already
// written, so a failure only marks formatting as skipped.
func (o *run) format(ctx context.Context, rows []int) {
	if len(rows) == 0 || o.r.formatter == nil {
		return
	}
	columns := schema.DefaultColumnCount
	if o.schema != nil {
		columns = o.schema.ColumnCount()
	}
	used, err := o.r.formatter.Apply(ctx, o.sc, rows, columns)
	if err != nil {
		o.result.FormattingSkipped = true
		o.result.FormattingError = err.Error()
		o.logger.Warn().Err(err).Ints("rows", rows).Msg("Row formatting skipped")
		return
	}
	o.result.FormattedWith = used
}

// noteDuplicates records keys already held by several rows before the write.
func (o *run) noteDuplicates(before *inventory.KeyRowMap) {
	if before == nil {
		return
	}
	dups := before.Duplicates()
	if len(dups) == 0 {
		return
	}
	o.result.PreexistingDuplicates = dups
	o.logger.Warn().Int("keys", len(dups)).Strs("job_ids", sortedKeys(dups)).Msg("Sheet already holds duplicate job ids")
}

// verify re-reads the Job ID column after rows were created and fails when
// any key is now held by more rows than before.
func (o *run) verify(ctx context.Context, before *inventory.KeyRowMap) error {
	if before == nil || len(o.result.NewRows) == 0 {
		return nil
	}
	after, err := o.keyMap(ctx, schema.JobID)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Could not verify duplicates after write")
		return nil
	}
	fresh := make(map[string]int)
	for key, n := range after.Counts {
		if n > 1 && n > before.Counts[key] {
			fresh[key] = n
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	o.result.NewDuplicates = fresh
	keys := sortedKeys(fresh)
	o.logger.Error().Strs("job_ids", keys).Msg("Write introduced duplicate job ids")
	return syncerr.New(syncerr.KindNewDuplicateDetected, "verify duplicates", "duplicate job ids: "+strings.Join(keys, ", "))
}

// finish logs the outcome and sends the run summary.
func (o *run) finish(ctx context.Context, err error) (*Result, error) {
	res := o.result
	res.Duration = time.Since(o.start)
	sort.Ints(res.NewRows)
	sort.Ints(res.UpdatedRows)

	switch {
	case err == nil:
		o.logger.Info().
			Int("added", res.Added).
			Int("updated", res.Updated).
			Int("skipped", res.Skipped).
			Int("missing", res.Missing).
			Dur("duration", res.Duration).
			Msg("Operation complete")
	case syncerr.IsBenign(err):
		o.logger.Info().Int("candidates", res.Candidates).Msg("Nothing to do")
	default:
		o.logger.Error().Err(err).Msg("Operation failed")
	}
	o.logger.Debug().Msg("Finished operation")

	if o.r.notifier != nil && !syncerr.IsBenign(err) {
		summary := notifications.RunSummary{
			Operation:     res.Operation,
			OperationID:   res.OperationID,
			Tab:           res.Tab,
			Added:         res.Added,
			Updated:       res.Updated,
			Missing:       res.Missing,
			Formatting:    !res.FormattingSkipped,
			NewDuplicates: sortedKeys(res.NewDuplicates),
		}
		if err != nil {
			summary.Error = err.Error()
		}
		if nerr := o.r.notifier.NotifyRun(ctx, summary); nerr != nil {
			o.logger.Warn().Err(nerr).Msg("Failed to send run notification")
		}
	}
	return res, err
}

func sortedKeys(m map[string]int) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func noMatch(op, detail string) error {
	return syncerr.New(syncerr.KindNoMatchingRows, op, detail)
}
