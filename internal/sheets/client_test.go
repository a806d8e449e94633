package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/syncerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), ClientConfig{
		RateLimit: 1000,
		RateBurst: 100,
		Options:   []option.ClientOption{option.WithEndpoint(srv.URL + "/"), option.WithoutAuthentication()},
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func TestGetValuesUsesRenderOption(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v4/spreadsheets/sheet-1/values/'Leads'!S2:S"), r.URL.Path)
		assert.Equal(t, "FORMULA", r.URL.Query().Get("valueRenderOption"))
		writeJSON(w, 200, `{"range":"Leads!S2:S","values":[["555"],[],["777"]]}`)
	})

	rows, err := c.GetValues(context.Background(), "sheet-1", "'Leads'!S2:S", destination.RenderFormula)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "777", rows[2][0])
}

func TestBatchUpdateValuesRetriesOnceAfterAuthFailure(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			writeJSON(w, 401, `{"error":{"code":401,"message":"expired"}}`)
			return
		}
		var body struct {
			ValueInputOption string `json:"valueInputOption"`
			Data             []struct {
				Range string `json:"range"`
			} `json:"data"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if len(body.Data) == 0 {
			t.Error("expected data in batch body")
			return
		}
		assert.Equal(t, "USER_ENTERED", body.ValueInputOption)
		assert.Equal(t, "'Leads'!A3:Z3", body.Data[0].Range)
		writeJSON(w, 200, `{}`)
	})

	err := c.BatchUpdateValues(context.Background(), "sheet-1", []destination.ValueRange{
		{Range: "'Leads'!A3:Z3", Values: [][]interface{}{{"x"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestBatchUpdateValuesSurfacesStatus(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, 403, `{"error":{"code":403,"message":"denied"}}`)
	})

	err := c.BatchUpdateValues(context.Background(), "sheet-1", []destination.ValueRange{{Range: "'Leads'!A2", Values: [][]interface{}{{"x"}}}})
	assert.True(t, syncerr.Is(err, syncerr.KindAuthFailure))
	assert.Equal(t, 403, syncerr.StatusCode(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEmptyBatchMakesNoCall(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	assert.NoError(t, c.BatchUpdateValues(context.Background(), "sheet-1", nil))
}

func TestReadErrorsAreClassified(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 503, `{"error":{"code":503,"message":"unavailable"}}`)
	})

	_, err := c.GetValues(context.Background(), "sheet-1", "'Leads'!1:1", destination.RenderFormatted)
	assert.True(t, syncerr.Is(err, syncerr.KindSheetUnreachable))
	assert.Equal(t, 503, syncerr.StatusCode(err))
}

func TestSheetID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"sheets":[{"properties":{"sheetId":0,"title":"Leads"}},{"properties":{"sheetId":77,"title":"__Upwork Template","hidden":true}}]}`)
	})

	id, err := c.SheetID(context.Background(), "sheet-1", "__Upwork Template")
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)

	first, err := c.FirstSheetID(context.Background(), "sheet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), first)

	_, err = c.SheetID(context.Background(), "sheet-1", "Missing")
	assert.True(t, errors.Is(err, destination.ErrSheetNotFound))
}

func TestValidationValues(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"sheets":[{"data":[{"rowData":[{"values":[{"dataValidation":{"condition":{"type":"ONE_OF_LIST","values":[{"userEnteredValue":"Ann"},{"userEnteredValue":"Bea"}]}}}]}]}]}]}`)
	})

	got, err := c.ValidationValues(context.Background(), "sheet-1", "'__Upwork Template'!C2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann", "Bea"}, got)
}

// TestLiveReadHeaders runs against a real spreadsheet when
// SHEETS_INTEGRATION=1, SPREADSHEET_ID and GOOGLE_CREDENTIALS_FILE are set.
func TestLiveReadHeaders(t *testing.T) {
	if os.Getenv("SHEETS_INTEGRATION") != "1" {
		t.Skip("set SHEETS_INTEGRATION=1 to run against Google Sheets")
	}
	config := DefaultClientConfig()
	config.CredentialsFile = os.Getenv("GOOGLE_CREDENTIALS_FILE")

	c, err := NewClient(context.Background(), config)
	require.NoError(t, err)

	_, err = c.GetValues(context.Background(), os.Getenv("SPREADSHEET_ID"), "'Sheet1'!1:1", destination.RenderFormatted)
	require.NoError(t, err)
}
