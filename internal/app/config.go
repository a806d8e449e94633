package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"upwork_sheet_sync/internal/config"
	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/notifications"
	"upwork_sheet_sync/internal/reconcile"
	"upwork_sheet_sync/internal/sheets"
	"upwork_sheet_sync/internal/template"
	"upwork_sheet_sync/internal/workbook"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupEnvironment loads .env file and configures zerolog output and log level.
func SetupEnvironment(out io.Writer) {
	err := godotenv.Load()

	production := os.Getenv("ENV") == "production"
	if production {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(out)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	levelStr := strings.ToLower(os.Getenv("LOGLEVEL"))
	level, known := logLevel(levelStr, production)
	zerolog.SetGlobalLevel(level)
	if !known {
		log.Warn().Msgf("Unknown LOGLEVEL '%s', defaulting to info.", levelStr)
	}

	// wait until now to report on the .env file so we have the chance to set up logging first
	if err == nil {
		log.Debug().Msg("Loaded environment variables from .env file.")
	} else {
		log.Debug().Msg("No .env file found or error loading .env file; proceeding with existing environment variables.")
	}
}

func logLevel(name string, production bool) (zerolog.Level, bool) {
	switch name {
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "fatal":
		return zerolog.FatalLevel, true
	case "panic":
		return zerolog.PanicLevel, true
	case "disabled":
		return zerolog.Disabled, true
	case "":
		if production {
			return zerolog.WarnLevel, true
		}
		return zerolog.InfoLevel, true
	default:
		return zerolog.InfoLevel, false
	}
}

// Runtime is one configured destination with the reconciler bound to it.
type Runtime struct {
	Settings   config.Settings
	Sheet      destination.Spreadsheet
	Reconciler *reconcile.Reconciler
	Notifier   *notifications.Client

	workbook *workbook.Workbook
}

// NewRuntime wires the destination, formatting chain and notifier described
// by s. A workbook path wins over a spreadsheet id.
func NewRuntime(ctx context.Context, s config.Settings) (*Runtime, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	rt := &Runtime{Settings: s}

	sheet, err := rt.initializeDestination(ctx)
	if err != nil {
		return nil, err
	}
	rt.Sheet = sheet
	rt.Notifier = InitializeNotificationClient(s.Notifications)

	resilience := config.DefaultResilienceConfig(s.ReadTimeout)
	chain, ensurer := rt.formatter(resilience)
	opts := reconcile.Options{
		Formatter:        chain,
		Resilience:       resilience,
		ProtectedColumns: s.ProtectedColumns,
		ConnectsMode:     s.ConnectsMode,
		Notifier:         rt.Notifier,
	}
	if ensurer != nil {
		opts.Template = ensurer
	}
	rt.Reconciler = reconcile.New(sheet, opts)
	return rt, nil
}

func (rt *Runtime) initializeDestination(ctx context.Context) (destination.Spreadsheet, error) {
	s := rt.Settings
	if s.Workbook != "" {
		log.Debug().Str("path", s.Workbook).Msg("Using local workbook")
		wb, err := workbook.Open(s.Workbook)
		if err != nil {
			return nil, err
		}
		rt.workbook = wb
		return wb, nil
	}

	log.Debug().Msg("Initializing sheets client")
	client, err := sheets.NewClient(ctx, sheets.ClientConfig{
		CredentialsFile: s.CredentialsFile,
		RateLimit:       s.RequestsPerSecond,
		RateBurst:       s.RequestBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return client, nil
}

// formatter builds the new-row formatting chain. The template strategy falls
// back to copying formats within the tab. Local workbooks have no reference
// template to clone and always format in-sheet.
func (rt *Runtime) formatter(resilience config.ResilienceConfig) (*template.Chain, *template.TemplateSheet) {
	inSheet := &template.InSheet{Formatter: rt.Sheet}
	if rt.Settings.TemplateStrategy == config.StrategyInSheet || rt.workbook != nil {
		return template.NewChain(inSheet), nil
	}
	ts := &template.TemplateSheet{
		Sheet:                  rt.Sheet,
		ReferenceSpreadsheetID: rt.Settings.TemplateSpreadsheetID,
		Title:                  rt.Settings.TemplateSheetTitle,
		Clone:                  resilience.TemplateClone,
	}
	return template.NewChain(ts, inSheet), ts
}

// Context returns the sheet coordinates of this runtime.
func (rt *Runtime) Context() destination.SheetContext {
	id := rt.Settings.SpreadsheetID
	if rt.workbook != nil {
		id = rt.workbook.ID()
	}
	return destination.SheetContext{SpreadsheetID: id, TabName: rt.Settings.TabName, Bidder: rt.Settings.Bidder}
}

// Close persists a local workbook. It is a no-op for remote spreadsheets.
func (rt *Runtime) Close() error {
	if rt.workbook == nil {
		return nil
	}
	if err := rt.workbook.Save(); err != nil {
		return err
	}
	log.Debug().Str("path", rt.Settings.Workbook).Msg("Workbook saved")
	return rt.workbook.Close()
}

// InitializeNotificationClient creates and returns the notification client
func InitializeNotificationClient(s config.NotificationSettings) *notifications.Client {
	log.Debug().
		Bool("enabled", s.Enabled).
		Str("base_url", s.URL).
		Str("topic", s.Topic).
		Msg("Initializing notification client")

	client := notifications.NewClient(s.URL, s.Topic, s.Enabled, s.Priority, 3, time.Second, 30*time.Second)

	if s.Enabled {
		log.Info().Str("topic", s.Topic).Msg("Notifications enabled")
	} else {
		log.Debug().Msg("Notifications disabled")
	}

	return client
}
