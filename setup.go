package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"upwork_sheet_sync/internal/app"
	"upwork_sheet_sync/internal/config"
	"upwork_sheet_sync/internal/reconcile"
	"upwork_sheet_sync/internal/records"
	"upwork_sheet_sync/internal/syncerr"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// globalFlags override the settings file and environment.
type globalFlags struct {
	configPath  string
	spreadsheet string
	tab         string
	bidder      string
	workbook    string
}

func (g *globalFlags) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&g.configPath, "config", "", "YAML settings file")
	f.StringVar(&g.spreadsheet, "spreadsheet", "", "spreadsheet id or URL")
	f.StringVar(&g.tab, "tab", "", "destination tab name")
	f.StringVar(&g.bidder, "bidder", "", "bidder recorded on new rows")
	f.StringVar(&g.workbook, "workbook", "", "local .xlsx file used instead of Google Sheets")
}

func (g *globalFlags) settings() (config.Settings, error) {
	path := g.configPath
	if path == "" {
		path = os.Getenv("SHEETSYNC_CONFIG")
	}
	s, err := config.Load(path)
	if err != nil {
		return s, err
	}
	for dst, v := range map[*string]string{
		&s.SpreadsheetID: g.spreadsheet,
		&s.TabName:       g.tab,
		&s.Bidder:        g.bidder,
		&s.Workbook:      g.workbook,
	} {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	s.Normalize()
	return s, nil
}

// runtime builds the destination for one command. tweak adjusts settings
// owned by command flags.
func (g *globalFlags) runtime(ctx context.Context, tweak func(*config.Settings)) (*app.Runtime, error) {
	s, err := g.settings()
	if err != nil {
		return nil, err
	}
	if tweak != nil {
		tweak(&s)
	}
	log.Debug().
		Str("spreadsheet_id", s.SpreadsheetID).
		Str("workbook", s.Workbook).
		Str("tab", s.TabName).
		Str("bidder", s.Bidder).
		Msg("Settings loaded")
	return app.NewRuntime(ctx, s)
}

// loadInput reads a payload file, or stdin when path is "-".
func loadInput(path string, stdin io.Reader) (*records.Payload, error) {
	if path == "" {
		return nil, errors.New("an --input payload is required")
	}
	if path != "-" {
		return records.LoadPayload(path)
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
	}
	return records.ParsePayload(data)
}

// report prints the outcome of one operation. Benign outcomes are not
// errors for the command.
func report(w io.Writer, res *reconcile.Result, err error) error {
	if res != nil {
		fmt.Fprintln(w, res.String())
	}
	switch {
	case err == nil:
		return nil
	case syncerr.IsBenign(err):
		fmt.Fprintf(w, "Nothing to do: %v\n", err)
		return nil
	}
	if code := syncerr.StatusCode(err); code != 0 {
		fmt.Fprintf(w, "Failed with status %d (%s)\n", code, syncerr.KindOf(err))
	} else if kind := syncerr.KindOf(err); kind != "" {
		fmt.Fprintf(w, "Failed (%s)\n", kind)
	}
	return err
}

func withRuntime(ctx context.Context, g *globalFlags, tweak func(*config.Settings), fn func(*app.Runtime) error) (err error) {
	rt, err := g.runtime(ctx, tweak)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(rt)
}
