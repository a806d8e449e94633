package sheets

import (
	"context"

	"upwork_sheet_sync/internal/destination"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/sheets/v4"
)

// Values are written as if typed by a user so HYPERLINK formulas and the
// leading-apostrophe text convention are honored.
const valueInputOption = "USER_ENTERED"

func (c *Client) GetValues(ctx context.Context, spreadsheetID, a1 string, render destination.Render) ([][]interface{}, error) {
	var values [][]interface{}
	err := c.do(ctx, "read range", func(s *sheets.Service) error {
		call := s.Spreadsheets.Values.Get(spreadsheetID, a1).Context(ctx)
		if render != "" {
			call = call.ValueRenderOption(string(render))
		}
		resp, err := call.Do()
		if err != nil {
			return err
		}
		values = resp.Values
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("range", a1).Int("rows", len(values)).Msg("Read range")
	return values, nil
}

func (c *Client) BatchGetValues(ctx context.Context, spreadsheetID string, ranges []string, render destination.Render) ([][][]interface{}, error) {
	out := make([][][]interface{}, len(ranges))
	if len(ranges) == 0 {
		return out, nil
	}

	err := c.do(ctx, "read ranges", func(s *sheets.Service) error {
		call := s.Spreadsheets.Values.BatchGet(spreadsheetID).Ranges(ranges...).Context(ctx)
		if render != "" {
			call = call.ValueRenderOption(string(render))
		}
		resp, err := call.Do()
		if err != nil {
			return err
		}
		for i, vr := range resp.ValueRanges {
			if i < len(out) {
				out[i] = vr.Values
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Int("ranges", len(ranges)).Msg("Read ranges")
	return out, nil
}

func (c *Client) BatchUpdateValues(ctx context.Context, spreadsheetID string, data []destination.ValueRange) error {
	if len(data) == 0 {
		return nil
	}

	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: valueInputOption}
	for _, d := range data {
		req.Data = append(req.Data, &sheets.ValueRange{Range: d.Range, Values: d.Values})
	}

	err := c.write(ctx, "write batch", func(s *sheets.Service) error {
		_, err := s.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return err
	}

	log.Debug().Int("ranges", len(data)).Msg("Wrote batch")
	return nil
}
