package workbook

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/mapping"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var ctx = context.Background()

func write(t *testing.T, w *Workbook, a1 string, rows ...[]interface{}) {
	t.Helper()
	require.NoError(t, w.BatchUpdateValues(ctx, "", []destination.ValueRange{{Range: a1, Values: rows}}))
}

func TestParseRange(t *testing.T) {
	a, err := parseRange("'Bob''s'!A2:Z")
	require.NoError(t, err)
	assert.Equal(t, area{sheet: "Bob's", startCol: 1, startRow: 2, endCol: 26}, a)

	a, err = parseRange("'Leads'!1:1")
	require.NoError(t, err)
	assert.Equal(t, area{sheet: "Leads", startCol: 1, startRow: 1, endRow: 1}, a)

	a, err = parseRange("'Leads'!C7")
	require.NoError(t, err)
	assert.Equal(t, area{sheet: "Leads", startCol: 3, startRow: 7, endCol: 3, endRow: 7}, a)

	_, err = parseRange("A1:B2")
	assert.Error(t, err)
}

func TestTextForcedIdentifiersRoundTrip(t *testing.T) {
	w := New()
	write(t, w, "'Sheet1'!S2", []interface{}{mapping.IDCell("00123")})

	got, err := w.GetValues(ctx, "", "'Sheet1'!S2:S", destination.RenderFormatted)
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{"00123"}}, got)
}

func TestHyperlinkCells(t *testing.T) {
	w := New()
	write(t, w, "'Sheet1'!B2", []interface{}{mapping.LinkCell("Go API", "https://x/~01")})

	labels, err := w.GetValues(ctx, "", "'Sheet1'!B2:B", destination.RenderFormatted)
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{"Go API"}}, labels)

	formulas, err := w.GetValues(ctx, "", "'Sheet1'!B2:B", destination.RenderFormula)
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{`=HYPERLINK("https://x/~01","Go API")`}}, formulas)
}

func TestReadTrimsLikeSheets(t *testing.T) {
	w := New()
	write(t, w, "'Sheet1'!A1:C1", []interface{}{"Date", "Job Name", "Job ID"})
	write(t, w, "'Sheet1'!A2:C2", []interface{}{"a", "", ""})
	write(t, w, "'Sheet1'!A4:C4", []interface{}{"", "b", ""})
	write(t, w, "'Sheet1'!A6:C6", []interface{}{"", "", ""})

	got, err := w.GetValues(ctx, "", "'Sheet1'!A2:C", destination.RenderFormatted)
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{"a"}, nil, {"", "b"}}, got)

	cols, err := w.BatchGetValues(ctx, "", []string{"'Sheet1'!A:A", "'Sheet1'!C:C"}, destination.RenderFormatted)
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{"Date"}, {"a"}}, cols[0])
	assert.Equal(t, [][]interface{}{{"Job ID"}}, cols[1])

	_, err = w.GetValues(ctx, "", "'Nope'!1:1", destination.RenderFormatted)
	assert.True(t, errors.Is(err, destination.ErrSheetNotFound))
}

func TestWriteCreatesMissingTab(t *testing.T) {
	w := New()
	write(t, w, "'Leads'!A1", []interface{}{"Date"})

	id, err := w.SheetID(ctx, "", "Leads")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestSheetManagement(t *testing.T) {
	w := New()
	write(t, w, "'Sheet1'!A1", []interface{}{"Date"})

	_, err := w.CopySheetFrom(ctx, "elsewhere", 0, "")
	assert.True(t, errors.Is(err, destination.ErrUnsupported))

	id, err := w.CopySheetFrom(ctx, w.ID(), 0, "")
	require.NoError(t, err)
	require.NoError(t, w.RenameSheet(ctx, "", id, "__Upwork Template", true))

	got, err := w.SheetID(ctx, "", "__Upwork Template")
	require.NoError(t, err)
	assert.Equal(t, id, got)
	visible, err := w.file.GetSheetVisible("__Upwork Template")
	require.NoError(t, err)
	assert.False(t, visible)

	values, err := w.GetValues(ctx, "", "'__Upwork Template'!A1", destination.RenderFormatted)
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{"Date"}}, values)

	require.NoError(t, w.DeleteSheet(ctx, "", id))
	_, err = w.SheetID(ctx, "", "__Upwork Template")
	assert.True(t, errors.Is(err, destination.ErrSheetNotFound))
}

func TestCopyPasteFormatAndValidation(t *testing.T) {
	w := New()
	f := w.file
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Italic: true}})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle("Sheet1", "B2", "B2", style))

	dv := excelize.NewDataValidation(true)
	dv.SetSqref("C2")
	require.NoError(t, dv.SetDropList([]string{"Ann", "Bea"}))
	require.NoError(t, f.AddDataValidation("Sheet1", dv))

	src := destination.GridRange{StartRow: 1, EndRow: 2, StartColumn: 0, EndColumn: 3}
	dst := destination.GridRange{StartRow: 4, EndRow: 6, StartColumn: 0, EndColumn: 3}
	for _, p := range destination.PasteTypes {
		require.NoError(t, w.CopyPaste(ctx, "", src, dst, p))
	}

	for _, cell := range []string{"B5", "B6"} {
		got, err := f.GetCellStyle("Sheet1", cell)
		require.NoError(t, err)
		assert.Equal(t, style, got, cell)
	}

	choices, err := w.ValidationValues(ctx, "", "'Sheet1'!C6")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann", "Bea"}, choices)

	none, err := w.ValidationValues(ctx, "", "'Sheet1'!A6")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSetBackgroundAndHeaderStyle(t *testing.T) {
	w := New()
	write(t, w, "'Sheet1'!A1:B1", []interface{}{"Date", "Read"})

	require.NoError(t, w.SetBackground(ctx, "", []destination.GridRange{{StartRow: 2, EndRow: 3, StartColumn: 1, EndColumn: 2}},
		destination.Color{Red: 0.8, Green: 0.95, Blue: 0.8}))
	require.NoError(t, w.StyleHeaderRow(ctx, "", 0, 2))

	id, err := w.file.GetCellStyle("Sheet1", "B3")
	require.NoError(t, err)
	style, err := w.file.GetStyle(id)
	require.NoError(t, err)
	require.NotEmpty(t, style.Fill.Color)
	assert.True(t, strings.HasSuffix(strings.ToUpper(style.Fill.Color[0]), "CCF2CC"), style.Fill.Color[0])

	id, err = w.file.GetCellStyle("Sheet1", "A1")
	require.NoError(t, err)
	style, err = w.file.GetStyle(id)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)
}

func TestOpenMissingFileStartsEmptyAndSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.xlsx")
	w, err := Open(path)
	require.NoError(t, err)
	write(t, w, "'Sheet1'!A1", []interface{}{"Date"})
	require.NoError(t, w.Save())
	require.NoError(t, w.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.GetValues(ctx, "", "'Sheet1'!1:1", destination.RenderFormatted)
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{"Date"}}, got)
}
