// Package selftest drives every reconciliation operation against a real
// destination with mock data and checks the sheet afterwards.
package selftest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"upwork_sheet_sync/internal/config"
	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/inventory"
	"upwork_sheet_sync/internal/mapping"
	"upwork_sheet_sync/internal/mock"
	"upwork_sheet_sync/internal/records"
	"upwork_sheet_sync/internal/reconcile"
	"upwork_sheet_sync/internal/schema"
	"upwork_sheet_sync/internal/syncerr"

	"github.com/rs/zerolog/log"
)

type Tone string

const (
	OK   Tone = "OK"
	Warn Tone = "WARN"
	Fail Tone = "FAIL"
	Skip Tone = "SKIP"
)

type StepResult struct {
	Label   string
	Tone    Tone
	Message string
}

func (s StepResult) String() string {
	if s.Message == "" {
		return fmt.Sprintf("%s: %s", s.Tone, s.Label)
	}
	return fmt.Sprintf("%s: %s - %s", s.Tone, s.Label, s.Message)
}

type Report struct {
	Steps  []StepResult
	Halted bool
}

func (r Report) Failed() bool {
	for _, s := range r.Steps {
		if s.Tone == Fail {
			return true
		}
	}
	return false
}

func (r Report) Count(t Tone) int {
	n := 0
	for _, s := range r.Steps {
		if s.Tone == t {
			n++
		}
	}
	return n
}

type Harness struct {
	Reconciler   *reconcile.Reconciler
	Sheet        destination.Values
	Context      destination.SheetContext
	Payload      *records.Payload
	Seed         string
	ViewedRate   float64
	ConnectsMode string
	Now          func() time.Time
	// Out receives each line as its step finishes. Nil discards.
	Out io.Writer
}

// state is what later steps learn from earlier ones.
type state struct {
	schema       *schema.Schema
	preIDs       *inventory.KeyRowMap
	added        *reconcile.Result
	sampleRow    int
	sampleBefore []string
	viewed       []records.ProposalViewEvent
	viewedResult *reconcile.Result
}

func (h *Harness) Run(ctx context.Context) Report {
	var report Report
	st := &state{}
	if h.Payload == nil {
		opts := mock.DefaultOptions()
		opts.Seed, opts.Now = h.Seed, h.Now
		h.Payload = mock.Generate(opts)
	}
	h.Context.TabName = schema.NormalizeTabName(h.Context.TabName)

	step := func(label string, critical bool, action func(context.Context) StepResult) {
		res := StepResult{Label: label, Tone: Skip, Message: "Skipped after failure."}
		if !report.Halted {
			res = action(ctx)
			res.Label = label
			if critical && res.Tone == Fail {
				report.Halted = true
			}
		}
		report.Steps = append(report.Steps, res)
		log.Debug().Str("step", label).Str("tone", string(res.Tone)).Msg("Self-test step finished")
		if h.Out != nil {
			fmt.Fprintln(h.Out, res.String())
		}
	}

	step("Validate sheet settings", true, h.validateSettings)
	step("Read headers", true, func(ctx context.Context) StepResult { return h.readHeaders(ctx, st) })
	step("Check boosted columns", false, func(context.Context) StepResult { return checkBoosted(st.schema) })
	step("Check header layout", false, func(context.Context) StepResult { return checkLayout(st.schema) })
	step("Check duplicate headers", false, func(context.Context) StepResult { return checkDuplicateHeaders(st.schema) })
	step("Check dropdowns", false, func(ctx context.Context) StepResult { return h.checkDropdowns(ctx, st) })
	step("Snapshot Job IDs", true, func(ctx context.Context) StepResult { return h.snapshot(ctx, st) })
	step("Add jobs", true, func(ctx context.Context) StepResult { return h.addJobs(ctx, st) })
	step("Verify add", true, func(ctx context.Context) StepResult { return h.verifyAdd(ctx, st) })
	step("Capture sample row", false, func(ctx context.Context) StepResult { return h.captureSample(ctx, st) })
	step("Refresh jobs", true, func(ctx context.Context) StepResult { return h.refreshJobs(ctx) })
	step("Verify protected columns", false, func(ctx context.Context) StepResult { return h.verifyProtected(ctx, st) })
	step("Re-add jobs", false, h.readd)
	step("Mark viewed", true, func(ctx context.Context) StepResult { return h.markViewed(ctx, st) })
	step("Verify viewed", false, func(ctx context.Context) StepResult { return h.verifyViewed(ctx, st) })
	step("Sync connects", true, h.syncConnects)
	step("Verify connects", false, func(ctx context.Context) StepResult { return h.verifyConnects(ctx, st) })

	log.Info().
		Int("ok", report.Count(OK)).
		Int("warn", report.Count(Warn)).
		Int("fail", report.Count(Fail)).
		Int("skip", report.Count(Skip)).
		Msg("Self-test finished")
	return report
}

func ok(msg string) StepResult   { return StepResult{Tone: OK, Message: msg} }
func warn(msg string) StepResult { return StepResult{Tone: Warn, Message: msg} }
func fail(msg string) StepResult { return StepResult{Tone: Fail, Message: msg} }

func failErr(err error) StepResult {
	if code := syncerr.StatusCode(err); code != 0 {
		return fail(fmt.Sprintf("%v (status %d)", err, code))
	}
	return fail(err.Error())
}

func (h *Harness) validateSettings(context.Context) StepResult {
	if strings.TrimSpace(h.Context.SpreadsheetID) == "" {
		return fail("Missing spreadsheet id.")
	}
	if h.Reconciler == nil || h.Sheet == nil {
		return fail("No destination configured.")
	}
	if h.Context.Bidder == "" {
		return warn("Bidder is empty; Bidder cells will not be written.")
	}
	return ok("Settings look good.")
}

// readHeaders prepares the sheet when the required columns are missing.
func (h *Harness) readHeaders(ctx context.Context, st *state) StepResult {
	s, err := schema.Resolve(ctx, h.Sheet, h.Context.SpreadsheetID, h.Context.TabName)
	if err != nil {
		return failErr(err)
	}
	required := []string{schema.JobName, schema.JobID, schema.ProposalID, schema.Read, schema.ConnectsSpent, schema.ConnectsRefund}
	missing := s.Missing(required...)
	if len(missing) == 0 {
		st.schema = s
		return ok(fmt.Sprintf("%d columns.", len(s.Headers)))
	}

	if len(s.Headers) > 0 {
		return fail("Missing columns: " + strings.Join(missing, ", ") + ".")
	}
	if _, err := h.Reconciler.PrepareSheet(ctx, h.Context); err != nil {
		return failErr(err)
	}
	if s, err = schema.Resolve(ctx, h.Sheet, h.Context.SpreadsheetID, h.Context.TabName); err != nil {
		return failErr(err)
	}
	if missing := s.Missing(required...); len(missing) > 0 {
		return fail("Missing columns after prepare: " + strings.Join(missing, ", ") + ".")
	}
	st.schema = s
	return warn("Header row was empty; sheet prepared.")
}

func checkBoosted(s *schema.Schema) StepResult {
	if missing := s.Missing(schema.BoostedConnectsSpent, schema.BoostedConnectsRefund); len(missing) > 0 {
		return warn("Missing " + strings.Join(missing, ", ") + "; boosted connects cannot be recorded.")
	}
	return ok("Boosted columns present.")
}

func checkLayout(s *schema.Schema) StepResult {
	mismatches := s.DefaultMismatches()
	if len(mismatches) == 0 {
		return ok("Headers match the default layout.")
	}
	shown := mismatches
	if len(shown) > 3 {
		shown = shown[:3]
	}
	return warn(fmt.Sprintf("%d differences from the default layout: %s.", len(mismatches), strings.Join(shown, "; ")))
}

func checkDuplicateHeaders(s *schema.Schema) StepResult {
	var unexpected []string
	for _, h := range s.Duplicates() {
		if h != schema.JobStatus {
			unexpected = append(unexpected, h)
		}
	}
	if len(unexpected) > 0 {
		return warn("Repeated headers: " + strings.Join(unexpected, ", ") + ".")
	}
	return ok("No unexpected repeated headers.")
}

// checkDropdowns looks at the row 2 validation lists of Job Status and Bidder.
func (h *Harness) checkDropdowns(ctx context.Context, st *state) StepResult {
	f, isFormatter := h.Sheet.(destination.Formatter)
	if !isFormatter {
		return StepResult{Tone: Skip, Message: "Destination cannot read validation rules."}
	}
	var notes []string
	for _, header := range []string{schema.JobStatus, schema.Bidder} {
		values, err := f.ValidationValues(ctx, h.Context.SpreadsheetID, schema.CellRange(h.Context.TabName, st.schema.Column(header), 2))
		if err != nil {
			notes = append(notes, header+" dropdown unreadable")
			continue
		}
		if len(values) == 0 {
			notes = append(notes, "no "+header+" dropdown")
			continue
		}
		if header == schema.Bidder && h.Context.Bidder != "" && !contains(values, h.Context.Bidder) {
			notes = append(notes, "Bidder dropdown lacks "+h.Context.Bidder)
		}
	}
	if len(notes) > 0 {
		return warn(strings.Join(notes, "; ") + ".")
	}
	return ok("Dropdowns present.")
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), want) {
			return true
		}
	}
	return false
}

func (h *Harness) jobIDs(ctx context.Context, s *schema.Schema) (*inventory.KeyRowMap, error) {
	return inventory.LoadKeyRowMap(ctx, h.Sheet, h.Context.SpreadsheetID, h.Context.TabName, s, schema.JobID)
}

func (h *Harness) snapshot(ctx context.Context, st *state) StepResult {
	m, err := h.jobIDs(ctx, st.schema)
	if err != nil {
		return failErr(err)
	}
	st.preIDs = m
	if dups := m.Duplicates(); len(dups) > 0 {
		return warn(fmt.Sprintf("%d Job IDs (%d duplicated).", len(m.Rows), len(dups)))
	}
	return ok(fmt.Sprintf("%d Job IDs.", len(m.Rows)))
}

func (h *Harness) addJobs(ctx context.Context, st *state) StepResult {
	res, err := h.Reconciler.AddJobs(ctx, h.Context, h.Payload.Jobs)
	st.added = res
	switch {
	case syncerr.IsBenign(err):
		return warn("All jobs were already present.")
	case err != nil:
		return failErr(err)
	case res.FormattingSkipped:
		return warn(fmt.Sprintf("Added %d rows; formatting skipped.", res.Added))
	}
	return ok(fmt.Sprintf("Added %d rows.", res.Added))
}

func (h *Harness) verifyAdd(ctx context.Context, st *state) StepResult {
	after, err := h.jobIDs(ctx, st.schema)
	if err != nil {
		return failErr(err)
	}

	var fresh []string
	for key, n := range after.Counts {
		if n > 1 && st.preIDs.Counts[key] < 2 {
			fresh = append(fresh, key)
		}
	}
	if len(fresh) > 0 {
		return fail("New duplicate Job IDs detected: " + strings.Join(firstN(fresh, 5), ", ") + ".")
	}

	expected := make(map[string]bool)
	var missing []string
	for _, j := range h.Payload.Jobs {
		id := strings.TrimSpace(j.JobID)
		if id == "" {
			continue
		}
		if _, found := after.Lookup(id); !found {
			missing = append(missing, id)
		}
		if _, existed := st.preIDs.Lookup(id); !existed {
			expected[id] = true
		}
	}
	if len(missing) > 0 {
		return fail("Missing Job IDs after add: " + strings.Join(firstN(missing, 5), ", ") + ".")
	}

	var vanished []string
	for _, key := range st.preIDs.Keys() {
		if _, found := after.Lookup(key); !found {
			vanished = append(vanished, key)
		}
	}
	if len(vanished) > 0 {
		return fail("Existing Job IDs disappeared: " + strings.Join(firstN(vanished, 5), ", ") + ".")
	}

	if st.added != nil && st.added.Added != len(expected) {
		return warn(fmt.Sprintf("Expected %d new rows, got %d.", len(expected), st.added.Added))
	}
	return ok("Add verified.")
}

func (h *Harness) readRow(ctx context.Context, s *schema.Schema, row int) ([]string, error) {
	values, err := h.Sheet.GetValues(ctx, h.Context.SpreadsheetID, schema.RowRange(h.Context.TabName, row, s.ColumnCount()), destination.RenderFormatted)
	if err != nil {
		return nil, err
	}
	out := make([]string, s.ColumnCount())
	if len(values) > 0 {
		for i, v := range values[0] {
			if i < len(out) {
				out[i] = strings.TrimSpace(destination.CellString(v))
			}
		}
	}
	return out, nil
}

func (h *Harness) captureSample(ctx context.Context, st *state) StepResult {
	ids, err := h.jobIDs(ctx, st.schema)
	if err != nil {
		return warn("Job ID map unavailable: " + err.Error())
	}
	for _, j := range h.Payload.Jobs {
		if row, found := ids.Lookup(strings.TrimSpace(j.JobID)); found {
			st.sampleRow = row
			break
		}
	}
	if st.sampleRow == 0 {
		return warn("No matching job found for sample checks.")
	}
	if st.sampleBefore, err = h.readRow(ctx, st.schema, st.sampleRow); err != nil {
		st.sampleRow = 0
		return warn("Unable to capture sample row.")
	}
	return ok(fmt.Sprintf("Row %d captured.", st.sampleRow))
}

func (h *Harness) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Harness) refreshJobs(ctx context.Context) StepResult {
	edited := mock.BulkEdit(h.Seed, h.Payload.Jobs, h.now())
	res, err := h.Reconciler.RefreshJobs(ctx, h.Context, edited)
	if syncerr.IsBenign(err) {
		return warn("No jobs matched.")
	}
	if err != nil {
		return failErr(err)
	}
	if res.Missing > 0 {
		return warn(fmt.Sprintf("Updated %d rows, %d missing.", res.Updated, res.Missing))
	}
	return ok(fmt.Sprintf("Updated %d rows.", res.Updated))
}

func (h *Harness) verifyProtected(ctx context.Context, st *state) StepResult {
	if st.sampleRow == 0 {
		return StepResult{Tone: Skip, Message: "No sample row."}
	}
	after, err := h.readRow(ctx, st.schema, st.sampleRow)
	if err != nil {
		return warn("Unable to re-read sample row.")
	}
	allowed := make(map[string]bool)
	for _, c := range reconcile.RefreshColumns {
		allowed[c] = true
	}
	var changed []string
	for i, header := range st.schema.Headers {
		if allowed[header] {
			continue
		}
		if st.sampleBefore[i] != after[i] {
			changed = append(changed, schema.ColumnLetter(i+1)+" ("+header+")")
		}
	}
	if len(changed) > 0 {
		return fail("Columns outside the refresh set changed: " + strings.Join(changed, ", ") + ".")
	}
	return ok("Only refresh columns changed.")
}

func (h *Harness) readd(ctx context.Context) StepResult {
	res, err := h.Reconciler.AddJobs(ctx, h.Context, h.Payload.Jobs)
	if syncerr.IsBenign(err) {
		return ok("Re-run added nothing.")
	}
	if err != nil {
		return failErr(err)
	}
	return fail(fmt.Sprintf("Re-run added %d rows.", res.Added))
}

func (h *Harness) markViewed(ctx context.Context, st *state) StepResult {
	rate := h.ViewedRate
	if rate <= 0 {
		rate = 0.6
	}
	st.viewed = mock.SelectViewed(h.Seed, h.Payload.Proposals, rate)
	if len(st.viewed) == 0 {
		return StepResult{Tone: Skip, Message: "No proposals selected to mark as viewed."}
	}
	res, err := h.Reconciler.MarkViewed(ctx, h.Context, st.viewed)
	st.viewedResult = res
	if syncerr.IsBenign(err) {
		return warn("No matching rows found to mark as viewed.")
	}
	if err != nil {
		return failErr(err)
	}
	return ok(fmt.Sprintf("Highlighted %d rows.", res.Updated))
}

func (h *Harness) verifyViewed(ctx context.Context, st *state) StepResult {
	if len(st.viewed) == 0 || st.viewedResult == nil {
		return StepResult{Tone: Skip, Message: "Nothing was marked."}
	}
	ids, err := inventory.LoadKeyRowMap(ctx, h.Sheet, h.Context.SpreadsheetID, h.Context.TabName, st.schema, schema.ProposalID)
	if err != nil {
		return warn("Proposal ID map unavailable.")
	}
	rows := make(map[int]bool)
	for _, p := range st.viewed {
		if row, found := ids.Lookup(strings.TrimSpace(p.ProposalID)); found {
			rows[row] = true
		}
	}
	if got := len(st.viewedResult.UpdatedRows); got != len(rows) {
		return warn(fmt.Sprintf("Expected %d highlighted rows, got %d.", len(rows), got))
	}
	return ok("Viewed rows verified.")
}

func (h *Harness) syncConnects(ctx context.Context) StepResult {
	res, err := h.Reconciler.SyncConnects(ctx, h.Context, h.Payload.Connects)
	if syncerr.Is(err, syncerr.KindMissingBoostedColumns) {
		return warn(err.Error())
	}
	if err != nil && !syncerr.IsBenign(err) {
		return failErr(err)
	}
	return ok(fmt.Sprintf("Updated %d rows, added %d.", res.Updated, res.Added))
}

func (h *Harness) verifyConnects(ctx context.Context, st *state) StepResult {
	if h.ConnectsMode == config.ConnectsAccumulate {
		return StepResult{Tone: Skip, Message: "Totals depend on earlier runs in accumulate mode."}
	}
	cmap, err := inventory.LoadConnectsRowMap(ctx, h.Sheet, h.Context.SpreadsheetID, h.Context.TabName, st.schema)
	if err != nil {
		return warn("Connects map unavailable: " + err.Error())
	}
	var wrong []string
	for _, t := range records.AggregateConnects(h.Payload.Connects) {
		if t.JobID == "" {
			continue
		}
		row, found := cmap.ByJobID[t.JobID]
		if !found {
			wrong = append(wrong, t.Key+" missing")
			continue
		}
		if row.Spent != mapping.ConnectsCell(t.Spent, mapping.Spent) || row.Refund != mapping.ConnectsCell(t.Refund, mapping.Refund) {
			wrong = append(wrong, fmt.Sprintf("%s has %q/%q", t.Key, row.Spent, row.Refund))
			continue
		}
		if cmap.HasBoostedColumns() &&
			(row.BoostedSpent != mapping.ConnectsCell(t.BoostedSpent, mapping.Spent) ||
				row.BoostedRefund != mapping.ConnectsCell(t.BoostedRefund, mapping.Refund)) {
			wrong = append(wrong, t.Key+" boosted totals differ")
		}
	}
	if len(wrong) > 0 {
		return fail("Connects totals mismatch: " + strings.Join(firstN(wrong, 5), "; ") + ".")
	}
	return ok("Connects totals verified.")
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
