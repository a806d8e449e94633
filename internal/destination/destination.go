// Package destination describes the spreadsheet operations the reconciliation
// engine needs. The Google Sheets client and the local workbook both implement
// Spreadsheet.
package destination

import (
	"context"
	"errors"
)

var (
	ErrSheetNotFound = errors.New("sheet not found")
	ErrUnsupported   = errors.New("operation not supported by destination")
)

type Render string

const (
	RenderFormatted Render = "FORMATTED_VALUE"
	RenderFormula   Render = "FORMULA"
)

type ValueRange struct {
	Range  string
	Values [][]interface{}
}

// GridRange is a zero-based, end-exclusive rectangle on one tab.
type GridRange struct {
	SheetID     int64
	StartRow    int64
	EndRow      int64
	StartColumn int64
	EndColumn   int64
}

type PasteType string

const (
	PasteFormat                PasteType = "PASTE_FORMAT"
	PasteDataValidation        PasteType = "PASTE_DATA_VALIDATION"
	PasteConditionalFormatting PasteType = "PASTE_CONDITIONAL_FORMATTING"
)

// PasteTypes lists the independent pastes used to stamp template rows.
var PasteTypes = []PasteType{PasteFormat, PasteDataValidation, PasteConditionalFormatting}

type Color struct {
	Red   float64
	Green float64
	Blue  float64
}

// Values reads and writes cell values. Writes interpret input the way a user
// typing into the sheet would, so formulas and leading-apostrophe text work.
type Values interface {
	GetValues(ctx context.Context, spreadsheetID, a1 string, render Render) ([][]interface{}, error)
	BatchGetValues(ctx context.Context, spreadsheetID string, ranges []string, render Render) ([][][]interface{}, error)
	BatchUpdateValues(ctx context.Context, spreadsheetID string, data []ValueRange) error
}

// Formatter covers the tab-id addressed operations: formatting copies,
// template tab management and highlights.
type Formatter interface {
	SheetID(ctx context.Context, spreadsheetID, title string) (int64, error)
	FirstSheetID(ctx context.Context, spreadsheetID string) (int64, error)
	CopySheetFrom(ctx context.Context, srcSpreadsheetID string, srcSheetID int64, dstSpreadsheetID string) (int64, error)
	RenameSheet(ctx context.Context, spreadsheetID string, sheetID int64, title string, hidden bool) error
	DeleteSheet(ctx context.Context, spreadsheetID string, sheetID int64) error
	CopyPaste(ctx context.Context, spreadsheetID string, src, dst GridRange, pasteType PasteType) error
	SetBackground(ctx context.Context, spreadsheetID string, ranges []GridRange, color Color) error
	StyleHeaderRow(ctx context.Context, spreadsheetID string, sheetID int64, columns int) error
	ValidationValues(ctx context.Context, spreadsheetID, a1 string) ([]string, error)
}

type Spreadsheet interface {
	Values
	Formatter
}

// CellString renders a cell value the way the reconciliation engine compares
// values: nil is empty, everything else is its printed form.
func CellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmtValue(t)
	}
}

// SheetContext names the tab an operation works on and the bidder it
// records. It is passed explicitly into every operation.
type SheetContext struct {
	SpreadsheetID string
	TabName       string
	Bidder        string
}
