package inventory

import (
	"context"
	"sort"

	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/mapping"
	"upwork_sheet_sync/internal/schema"
	"upwork_sheet_sync/internal/syncerr"

	"github.com/rs/zerolog/log"
)

// KeyRowMap maps trimmed cell values of one column to the first row holding
// them. Counts keeps every occurrence so duplicates stay visible.
type KeyRowMap struct {
	Column string
	Rows   map[string]int
	Counts map[string]int
}

func (m *KeyRowMap) Lookup(key string) (int, bool) {
	if m == nil || key == "" {
		return 0, false
	}
	row, ok := m.Rows[key]
	return row, ok
}

// Duplicates returns the occurrence count of every key held by more than one row.
func (m *KeyRowMap) Duplicates() map[string]int {
	out := make(map[string]int)
	for k, n := range m.Counts {
		if n > 1 {
			out[k] = n
		}
	}
	return out
}

func (m *KeyRowMap) Keys() []string {
	keys := make([]string, 0, len(m.Rows))
	for k := range m.Rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildKeyRowMap indexes a column read from firstRow down.
func BuildKeyRowMap(column string, cells [][]interface{}, firstRow int) *KeyRowMap {
	m := &KeyRowMap{Column: column, Rows: make(map[string]int), Counts: make(map[string]int)}
	for i, row := range cells {
		key := cellText(row, 1)
		if key == "" {
			continue
		}
		m.Counts[key]++
		if _, ok := m.Rows[key]; !ok {
			m.Rows[key] = firstRow + i
		}
	}
	return m
}

// LoadKeyRowMap reads one named column and indexes it.
func LoadKeyRowMap(ctx context.Context, values destination.Values, spreadsheetID, tab string, s *schema.Schema, column string) (*KeyRowMap, error) {
	if err := s.Require("build key map", column); err != nil {
		return nil, err
	}
	log.Debug().Str("column", column).Msg("Loading key map")

	cells, err := values.GetValues(ctx, spreadsheetID, schema.ColumnRange(tab, s.Column(column)), destination.RenderFormatted)
	if err != nil {
		return nil, syncerr.Classify("build key map", err)
	}

	m := BuildKeyRowMap(column, cells, 2)
	log.Debug().
		Str("column", column).
		Int("keys", len(m.Rows)).
		Int("duplicate_keys", len(m.Duplicates())).
		Msg("Loaded key map")
	return m, nil
}

// LoadLinkRowMap indexes the URLs embedded in HYPERLINK cells of the Job
// Name column. It reads formulas rather than rendered labels.
func LoadLinkRowMap(ctx context.Context, values destination.Values, spreadsheetID, tab string, s *schema.Schema) (*KeyRowMap, error) {
	if err := s.Require("build link map", schema.JobName); err != nil {
		return nil, err
	}
	cells, err := values.GetValues(ctx, spreadsheetID, schema.ColumnRange(tab, s.Column(schema.JobName)), destination.RenderFormula)
	if err != nil {
		return nil, syncerr.Classify("build link map", err)
	}

	links := make([][]interface{}, len(cells))
	for i, row := range cells {
		if url, _, ok := mapping.ParseHyperlink(cellText(row, 1)); ok {
			links[i] = []interface{}{url}
		}
	}
	return BuildKeyRowMap(schema.JobName, links, 2), nil
}

type ConnectsRow struct {
	RowIndex      int
	Spent         string
	Refund        string
	BoostedSpent  string
	BoostedRefund string
}

// ConnectsColumns holds the A1 letters of the numeric columns; boosted
// letters are empty when the tab lacks them.
type ConnectsColumns struct {
	Spent         string
	Refund        string
	BoostedSpent  string
	BoostedRefund string
}

type ConnectsRowMap struct {
	ByJobID      map[string]ConnectsRow
	ByRow        map[int]ConnectsRow
	Columns      ConnectsColumns
	NextRowIndex int
}

func (m *ConnectsRowMap) HasBoostedColumns() bool {
	return m.Columns.BoostedSpent != "" && m.Columns.BoostedRefund != ""
}

// Row returns the existing values for rowIndex, or an empty row.
func (m *ConnectsRowMap) Row(rowIndex int) ConnectsRow {
	if r, ok := m.ByRow[rowIndex]; ok {
		return r
	}
	return ConnectsRow{RowIndex: rowIndex}
}

// LoadConnectsRowMap reads Job ID and the connects columns in one batched
// read. Job ID, Connects Spent and Connects Refund are required.
func LoadConnectsRowMap(ctx context.Context, values destination.Values, spreadsheetID, tab string, s *schema.Schema) (*ConnectsRowMap, error) {
	if err := s.Require("build connects map", schema.JobID, schema.ConnectsSpent, schema.ConnectsRefund); err != nil {
		return nil, err
	}

	cols := ConnectsColumns{
		Spent:         s.Column(schema.ConnectsSpent),
		Refund:        s.Column(schema.ConnectsRefund),
		BoostedSpent:  s.Column(schema.BoostedConnectsSpent),
		BoostedRefund: s.Column(schema.BoostedConnectsRefund),
	}
	letters := []string{s.Column(schema.JobID), cols.Spent, cols.Refund, cols.BoostedSpent, cols.BoostedRefund}
	var ranges []string
	for _, l := range letters {
		if l != "" {
			ranges = append(ranges, schema.FullColumnRange(tab, l))
		}
	}

	log.Debug().Int("ranges", len(ranges)).Msg("Loading connects map")
	columns, err := values.BatchGetValues(ctx, spreadsheetID, ranges, destination.RenderFormatted)
	if err != nil {
		return nil, syncerr.Classify("build connects map", err)
	}

	byLetter := make(map[string][][]interface{})
	i := 0
	for _, l := range letters {
		if l == "" {
			continue
		}
		if i < len(columns) {
			byLetter[l] = columns[i]
		}
		i++
	}

	jobIDs := byLetter[letters[0]]
	rowCount := 0
	for _, l := range letters {
		if l != "" && len(byLetter[l]) > rowCount {
			rowCount = len(byLetter[l])
		}
	}

	m := &ConnectsRowMap{
		ByJobID:      make(map[string]ConnectsRow),
		ByRow:        make(map[int]ConnectsRow),
		Columns:      cols,
		NextRowIndex: max(rowCount+1, 2),
	}
	at := func(letter string, idx int) string {
		if letter == "" {
			return ""
		}
		c := byLetter[letter]
		if idx >= len(c) {
			return ""
		}
		return cellText(c[idx], 1)
	}

	// Index 0 is the header row.
	for idx := 1; idx < rowCount; idx++ {
		row := ConnectsRow{
			RowIndex:      idx + 1,
			Spent:         at(cols.Spent, idx),
			Refund:        at(cols.Refund, idx),
			BoostedSpent:  at(cols.BoostedSpent, idx),
			BoostedRefund: at(cols.BoostedRefund, idx),
		}
		m.ByRow[row.RowIndex] = row
		if idx < len(jobIDs) {
			if id := cellText(jobIDs[idx], 1); id != "" {
				if _, seen := m.ByJobID[id]; !seen {
					m.ByJobID[id] = row
				}
			}
		}
	}
	log.Debug().Int("jobs", len(m.ByJobID)).Bool("boosted_columns", m.HasBoostedColumns()).Msg("Loaded connects map")
	return m, nil
}
