package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"upwork_sheet_sync/internal/config"
	"upwork_sheet_sync/internal/mock"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		want       zerolog.Level
		known      bool
	}{
		{"debug", false, zerolog.DebugLevel, true},
		{"warning", false, zerolog.WarnLevel, true},
		{"", false, zerolog.InfoLevel, true},
		{"", true, zerolog.WarnLevel, true},
		{"chatty", false, zerolog.InfoLevel, false},
	}
	for _, tt := range tests {
		level, known := logLevel(tt.name, tt.production)
		assert.Equal(t, tt.want, level, tt.name)
		assert.Equal(t, tt.known, known, tt.name)
	}
}

func workbookSettings(t *testing.T) config.Settings {
	s := config.Defaults()
	s.Workbook = filepath.Join(t.TempDir(), "jobs.xlsx")
	s.Bidder = "Ann"
	s.Normalize()
	return s
}

func TestNewRuntimeRejectsInvalidSettings(t *testing.T) {
	s := config.Defaults()
	_, err := NewRuntime(context.Background(), s)
	assert.Error(t, err)
}

func TestWorkbookRuntimeFormatsInSheet(t *testing.T) {
	rt, err := NewRuntime(context.Background(), workbookSettings(t))
	require.NoError(t, err)

	chain, ensurer := rt.formatter(config.DefaultResilienceConfig(config.DefaultReadTimeout))
	assert.Nil(t, ensurer)
	assert.Equal(t, []string{"in-sheet"}, chain.Names())
}

func TestWorkbookRuntimeSavesOnClose(t *testing.T) {
	s := workbookSettings(t)
	rt, err := NewRuntime(context.Background(), s)
	require.NoError(t, err)

	sc := rt.Context()
	assert.Equal(t, s.Workbook, sc.SpreadsheetID)
	assert.Equal(t, "Sheet1", sc.TabName)
	assert.Equal(t, "Ann", sc.Bidder)

	payload := mock.Generate(mock.DefaultOptions())
	res, err := rt.Reconciler.AddJobs(context.Background(), sc, payload.Jobs)
	require.NoError(t, err)
	assert.Equal(t, len(payload.Jobs), res.Added)

	require.NoError(t, rt.Close())
	_, err = os.Stat(s.Workbook)
	assert.NoError(t, err)
}
