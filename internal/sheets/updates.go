package sheets

import (
	"context"
	"fmt"

	"upwork_sheet_sync/internal/destination"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/sheets/v4"
)

func (c *Client) properties(ctx context.Context, spreadsheetID string) ([]*sheets.SheetProperties, error) {
	var props []*sheets.SheetProperties
	err := c.do(ctx, "read sheet properties", func(s *sheets.Service) error {
		resp, err := s.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
		if err != nil {
			return err
		}
		for _, sh := range resp.Sheets {
			if sh.Properties != nil {
				props = append(props, sh.Properties)
			}
		}
		return nil
	})
	return props, err
}

func (c *Client) SheetID(ctx context.Context, spreadsheetID, title string) (int64, error) {
	props, err := c.properties(ctx, spreadsheetID)
	if err != nil {
		return 0, err
	}
	for _, p := range props {
		if p.Title == title {
			return p.SheetId, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", destination.ErrSheetNotFound, title)
}

func (c *Client) FirstSheetID(ctx context.Context, spreadsheetID string) (int64, error) {
	props, err := c.properties(ctx, spreadsheetID)
	if err != nil {
		return 0, err
	}
	if len(props) == 0 {
		return 0, destination.ErrSheetNotFound
	}
	return props[0].SheetId, nil
}

func (c *Client) CopySheetFrom(ctx context.Context, srcSpreadsheetID string, srcSheetID int64, dstSpreadsheetID string) (int64, error) {
	var newID int64
	req := &sheets.CopySheetToAnotherSpreadsheetRequest{DestinationSpreadsheetId: dstSpreadsheetID}
	err := c.write(ctx, "copy sheet", func(s *sheets.Service) error {
		props, err := s.Spreadsheets.Sheets.CopyTo(srcSpreadsheetID, srcSheetID, req).Context(ctx).Do()
		if err != nil {
			return err
		}
		newID = props.SheetId
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Debug().Int64("sheet_id", newID).Msg("Copied sheet from reference workbook")
	return newID, nil
}

func (c *Client) RenameSheet(ctx context.Context, spreadsheetID string, sheetID int64, title string, hidden bool) error {
	return c.batchUpdate(ctx, spreadsheetID, "rename sheet", &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{SheetId: sheetID, Title: title, Hidden: hidden},
			Fields:     "title,hidden",
		},
	})
}

func (c *Client) DeleteSheet(ctx context.Context, spreadsheetID string, sheetID int64) error {
	return c.batchUpdate(ctx, spreadsheetID, "delete sheet", &sheets.Request{
		DeleteSheet: &sheets.DeleteSheetRequest{SheetId: sheetID},
	})
}

func (c *Client) CopyPaste(ctx context.Context, spreadsheetID string, src, dst destination.GridRange, pasteType destination.PasteType) error {
	return c.batchUpdate(ctx, spreadsheetID, "copy "+string(pasteType), &sheets.Request{
		CopyPaste: &sheets.CopyPasteRequest{
			Source:           gridRange(src),
			Destination:      gridRange(dst),
			PasteType:        string(pasteType),
			PasteOrientation: "NORMAL",
		},
	})
}

func (c *Client) SetBackground(ctx context.Context, spreadsheetID string, ranges []destination.GridRange, color destination.Color) error {
	if len(ranges) == 0 {
		return nil
	}
	var reqs []*sheets.Request
	for _, r := range ranges {
		reqs = append(reqs, &sheets.Request{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: gridRange(r),
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						BackgroundColor: &sheets.Color{Red: color.Red, Green: color.Green, Blue: color.Blue},
					},
				},
				Fields: "userEnteredFormat.backgroundColor",
			},
		})
	}
	return c.batchUpdate(ctx, spreadsheetID, "set background", reqs...)
}

func (c *Client) StyleHeaderRow(ctx context.Context, spreadsheetID string, sheetID int64, columns int) error {
	return c.batchUpdate(ctx, spreadsheetID, "style header row",
		&sheets.Request{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: gridRange(destination.GridRange{SheetID: sheetID, StartRow: 0, EndRow: 1, EndColumn: int64(columns)}),
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{TextFormat: &sheets.TextFormat{Bold: true}},
				},
				Fields: "userEnteredFormat.textFormat.bold",
			},
		},
		&sheets.Request{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:        sheetID,
					GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	)
}

// ValidationValues returns the list choices of the data validation rule on
// the cell at a1, or nil when it has none.
func (c *Client) ValidationValues(ctx context.Context, spreadsheetID, a1 string) ([]string, error) {
	var out []string
	err := c.do(ctx, "read validation", func(s *sheets.Service) error {
		resp, err := s.Spreadsheets.Get(spreadsheetID).
			Ranges(a1).
			Fields("sheets.data.rowData.values.dataValidation").
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		for _, sh := range resp.Sheets {
			for _, gd := range sh.Data {
				for _, rd := range gd.RowData {
					for _, cell := range rd.Values {
						if cell.DataValidation == nil || cell.DataValidation.Condition == nil {
							continue
						}
						for _, v := range cell.DataValidation.Condition.Values {
							out = append(out, v.UserEnteredValue)
						}
					}
				}
			}
		}
		return nil
	})
	return out, err
}

func (c *Client) batchUpdate(ctx context.Context, spreadsheetID, op string, reqs ...*sheets.Request) error {
	body := &sheets.BatchUpdateSpreadsheetRequest{Requests: reqs}
	err := c.write(ctx, op, func(s *sheets.Service) error {
		_, err := s.Spreadsheets.BatchUpdate(spreadsheetID, body).Context(ctx).Do()
		return err
	})
	if err != nil {
		return err
	}
	log.Debug().Str("operation", op).Int("requests", len(reqs)).Msg("Applied spreadsheet update")
	return nil
}

func gridRange(g destination.GridRange) *sheets.GridRange {
	return &sheets.GridRange{
		SheetId:          g.SheetID,
		StartRowIndex:    g.StartRow,
		EndRowIndex:      g.EndRow,
		StartColumnIndex: g.StartColumn,
		EndColumnIndex:   g.EndColumn,
	}
}
