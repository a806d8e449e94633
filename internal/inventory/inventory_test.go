package inventory

import (
	"context"
	"errors"
	"testing"

	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/schema"
	"upwork_sheet_sync/internal/syncerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValues struct {
	byRange map[string][][]interface{}
	err     error
	renders []destination.Render
	batch   [][]string
}

func (s *stubValues) GetValues(_ context.Context, _, a1 string, render destination.Render) ([][]interface{}, error) {
	s.renders = append(s.renders, render)
	if s.err != nil {
		return nil, s.err
	}
	return s.byRange[a1], nil
}

func (s *stubValues) BatchGetValues(_ context.Context, _ string, ranges []string, _ destination.Render) ([][][]interface{}, error) {
	s.batch = append(s.batch, ranges)
	if s.err != nil {
		return nil, s.err
	}
	out := make([][][]interface{}, len(ranges))
	for i, r := range ranges {
		out[i] = s.byRange[r]
	}
	return out, nil
}

func (s *stubValues) BatchUpdateValues(context.Context, string, []destination.ValueRange) error {
	return errors.New("read only")
}

func TestClassifyStatusColumnsDoNotCountAsContent(t *testing.T) {
	s := schema.New([]string{"Date", "Job Name", "Job Status", "Remarks", "Job Status"})
	rows := [][]interface{}{
		{"'Jan 1", "Alpha"},
		{"", " ", "Hired Us", "", "Closed"},
		{},
		{"", "", "", "call back"},
		{"", "", "Open"},
	}

	inv := Classify(rows, s, []string{schema.JobStatus})

	assert.Equal(t, []int{3, 4, 6}, inv.EmptyRows)
	assert.Equal(t, 7, inv.NextRowIndex)
	assert.Equal(t, map[int]string{3: "Hired Us", 5: "Closed"}, inv.ProtectedValues[3])
	assert.Equal(t, map[int]string{3: "Open"}, inv.ProtectedValues[6])
	assert.Nil(t, inv.ProtectedValues[4])
}

func TestClassifyProtectedRemarks(t *testing.T) {
	s := schema.New([]string{"Date", "Job Status", "Remarks"})
	rows := [][]interface{}{{"", "", "call back"}}

	inv := Classify(rows, s, []string{schema.JobStatus, schema.Remarks})
	assert.Equal(t, []int{2}, inv.EmptyRows)
	assert.Equal(t, map[int]string{3: "call back"}, inv.ProtectedValues[2])
}

func TestClassifyNoRows(t *testing.T) {
	inv := Classify(nil, schema.New(nil), []string{schema.JobStatus})
	assert.Empty(t, inv.EmptyRows)
	assert.Equal(t, 2, inv.NextRowIndex)
}

func TestOverlay(t *testing.T) {
	inv := &Inventory{ProtectedValues: map[int]map[int]string{5: {2: "Declined", 9: "out of range"}}}
	row := []interface{}{"a", "", "c"}
	inv.Overlay(5, row)
	assert.Equal(t, []interface{}{"a", "Declined", "c"}, row)

	untouched := []interface{}{"a", "b"}
	inv.Overlay(6, untouched)
	assert.Equal(t, []interface{}{"a", "b"}, untouched)
}

func TestAllocatorUsesPoolInAscendingOrder(t *testing.T) {
	inv := &Inventory{EmptyRows: []int{5, 9, 12}, NextRowIndex: 20}
	a := inv.Allocator()

	r, pooled := a.Next()
	assert.Equal(t, 5, r)
	assert.True(t, pooled)
	r, _ = a.Next()
	assert.Equal(t, 9, r)
	assert.Equal(t, 1, a.Remaining())
	assert.Equal(t, 20, a.NextRowIndex())

	r, _ = a.Next()
	assert.Equal(t, 12, r)
	r, pooled = a.Next()
	assert.Equal(t, 20, r)
	assert.False(t, pooled)
	assert.Equal(t, 21, a.NextRowIndex())
	assert.Equal(t, []int{5, 9, 12}, inv.EmptyRows)
}

func TestScanReadsBodyRange(t *testing.T) {
	stub := &stubValues{byRange: map[string][][]interface{}{
		"'Leads'!A2:C": {{"x"}, {}},
	}}
	inv, err := Scan(context.Background(), stub, "id", "Leads", schema.New([]string{"a", "b", "c"}), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, inv.EmptyRows)
	assert.Equal(t, 4, inv.NextRowIndex)

	_, err = Scan(context.Background(), &stubValues{err: context.DeadlineExceeded}, "id", "Leads", schema.New(nil), nil)
	assert.True(t, syncerr.Is(err, syncerr.KindTimeout))
}

func TestBuildKeyRowMapFirstOccurrenceWins(t *testing.T) {
	m := BuildKeyRowMap(schema.JobName, [][]interface{}{{" Alpha "}, {}, {"Beta"}, {"Alpha"}, {"alpha"}}, 2)

	row, ok := m.Lookup("Alpha")
	assert.True(t, ok)
	assert.Equal(t, 2, row)
	row, _ = m.Lookup("alpha")
	assert.Equal(t, 6, row)
	_, ok = m.Lookup("")
	assert.False(t, ok)
	assert.Equal(t, map[string]int{"Alpha": 2}, m.Duplicates())
	assert.Equal(t, []string{"Alpha", "Beta", "alpha"}, m.Keys())
}

func TestLoadKeyRowMap(t *testing.T) {
	s := schema.New([]string{"Date", "Job ID"})
	stub := &stubValues{byRange: map[string][][]interface{}{
		"'Leads'!B2:B": {{"555"}, {"777"}, {"555"}},
	}}
	m, err := LoadKeyRowMap(context.Background(), stub, "id", "Leads", s, schema.JobID)
	require.NoError(t, err)
	row, _ := m.Lookup("777")
	assert.Equal(t, 3, row)
	assert.Equal(t, map[string]int{"555": 2}, m.Duplicates())

	_, err = LoadKeyRowMap(context.Background(), stub, "id", "Leads", s, schema.ProposalID)
	assert.True(t, syncerr.Is(err, syncerr.KindSchemaIncomplete))
}

func TestLoadLinkRowMapReadsFormulas(t *testing.T) {
	s := schema.New([]string{"Date", "Job Name"})
	stub := &stubValues{byRange: map[string][][]interface{}{
		"'Leads'!B2:B": {{`=HYPERLINK("https://x/~01","Alpha")`}, {"Plain"}},
	}}
	m, err := LoadLinkRowMap(context.Background(), stub, "id", "Leads", s)
	require.NoError(t, err)
	row, ok := m.Lookup("https://x/~01")
	assert.True(t, ok)
	assert.Equal(t, 2, row)
	assert.Equal(t, []destination.Render{destination.RenderFormula}, stub.renders)
}

func TestLoadConnectsRowMap(t *testing.T) {
	s := schema.New([]string{"Job ID", "Connects Spent", "Connects Refund", "Boosted Connects Spent", "Boosted Connects Refund"})
	stub := &stubValues{byRange: map[string][][]interface{}{
		"'Leads'!A:A": {{"Job ID"}, {"555"}, {}, {"777"}},
		"'Leads'!B:B": {{"Connects Spent"}, {"-8"}, {"-2"}},
		"'Leads'!C:C": {{"Connects Refund"}, {""}, {""}, {"+4"}, {"+1"}},
		"'Leads'!D:D": {{"Boosted Connects Spent"}},
		"'Leads'!E:E": {{"Boosted Connects Refund"}},
	}}

	m, err := LoadConnectsRowMap(context.Background(), stub, "id", "Leads", s)
	require.NoError(t, err)
	assert.True(t, m.HasBoostedColumns())
	assert.Equal(t, ConnectsRow{RowIndex: 2, Spent: "-8"}, m.ByJobID["555"])
	assert.Equal(t, ConnectsRow{RowIndex: 4, Refund: "+4"}, m.ByJobID["777"])
	assert.Equal(t, ConnectsRow{RowIndex: 3, Spent: "-2"}, m.Row(3))
	assert.Equal(t, ConnectsRow{RowIndex: 9}, m.Row(9))
	assert.Equal(t, 6, m.NextRowIndex)
	assert.Len(t, stub.batch, 1)
}

func TestLoadConnectsRowMapRequiresColumns(t *testing.T) {
	s := schema.New([]string{"Job ID", "Connects Spent"})
	_, err := LoadConnectsRowMap(context.Background(), &stubValues{}, "id", "Leads", s)
	assert.True(t, syncerr.Is(err, syncerr.KindSchemaIncomplete))

	s = schema.New([]string{"Job ID", "Connects Spent", "Connects Refund"})
	m, err := LoadConnectsRowMap(context.Background(), &stubValues{byRange: map[string][][]interface{}{}}, "id", "Leads", s)
	require.NoError(t, err)
	assert.False(t, m.HasBoostedColumns())
	assert.Equal(t, 2, m.NextRowIndex)
}
