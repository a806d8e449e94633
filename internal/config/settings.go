package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"upwork_sheet_sync/internal/schema"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTemplateSpreadsheetID = "1sV7RYfXd4cNJdnK0ohTnPbxmSp36_dzndUVFjKE0dzQ"
	DefaultTemplateSheetTitle    = "__Upwork Template"
	DefaultReadTimeout           = 20 * time.Second

	StrategyTemplateSheet = "template-sheet"
	StrategyInSheet       = "in-sheet"

	ConnectsReplace    = "replace"
	ConnectsAccumulate = "accumulate"
)

type NotificationSettings struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Topic    string `yaml:"topic"`
	Priority string `yaml:"priority"`
}

// Settings is everything a run needs to reach and shape the destination.
type Settings struct {
	SpreadsheetID         string               `yaml:"spreadsheet_id"`
	TabName               string               `yaml:"tab_name"`
	Bidder                string               `yaml:"bidder"`
	CredentialsFile       string               `yaml:"credentials_file"`
	Workbook              string               `yaml:"workbook"`
	TemplateSpreadsheetID string               `yaml:"template_spreadsheet_id"`
	TemplateSheetTitle    string               `yaml:"template_sheet_title"`
	TemplateStrategy      string               `yaml:"template_strategy"`
	ConnectsMode          string               `yaml:"connects_mode"`
	ProtectedColumns      []string             `yaml:"protected_columns"`
	ReadTimeout           time.Duration        `yaml:"read_timeout"`
	RequestsPerSecond     float64              `yaml:"requests_per_second"`
	RequestBurst          int                  `yaml:"request_burst"`
	Notifications         NotificationSettings `yaml:"notifications"`
}

func Defaults() Settings {
	return Settings{
		TabName:               schema.DefaultTabName,
		CredentialsFile:       "credentials.json",
		TemplateSpreadsheetID: DefaultTemplateSpreadsheetID,
		TemplateSheetTitle:    DefaultTemplateSheetTitle,
		TemplateStrategy:      StrategyTemplateSheet,
		ConnectsMode:          ConnectsReplace,
		ProtectedColumns:      []string{schema.JobStatus},
		ReadTimeout:           DefaultReadTimeout,
		RequestsPerSecond:     1,
		RequestBurst:          5,
		Notifications: NotificationSettings{
			URL:   "https://ntfy.sh",
			Topic: "upwork-sheet-sync",
		},
	}
}

// Load starts from the defaults, applies the YAML file at path when path is
// set, then environment variables.
func Load(path string) (Settings, error) {
	s := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("failed to read settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("failed to parse settings file: %w", err)
		}
	}
	if err := s.ApplyEnv(os.Getenv); err != nil {
		return s, err
	}
	s.Normalize()
	return s, nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (s *Settings) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("SPREADSHEET_ID", &s.SpreadsheetID)
	str("SHEET_NAME", &s.TabName)
	str("BIDDER", &s.Bidder)
	str("GOOGLE_CREDENTIALS_FILE", &s.CredentialsFile)
	str("WORKBOOK_PATH", &s.Workbook)
	str("TEMPLATE_SPREADSHEET_ID", &s.TemplateSpreadsheetID)
	str("TEMPLATE_SHEET_TITLE", &s.TemplateSheetTitle)
	str("TEMPLATE_STRATEGY", &s.TemplateStrategy)
	str("CONNECTS_MODE", &s.ConnectsMode)
	str("NTFY_URL", &s.Notifications.URL)
	str("NTFY_TOPIC", &s.Notifications.Topic)
	str("NTFY_PRIORITY", &s.Notifications.Priority)

	if v := strings.TrimSpace(getenv("PROTECTED_COLUMNS")); v != "" {
		s.ProtectedColumns = splitList(v)
	}
	if v := strings.TrimSpace(getenv("NTFY_ENABLED")); v != "" {
		s.Notifications.Enabled = v == "true"
	}
	if v := strings.TrimSpace(getenv("READ_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid READ_TIMEOUT %q: %w", v, err)
		}
		s.ReadTimeout = d
	}
	if v := strings.TrimSpace(getenv("SHEETS_RPS")); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid SHEETS_RPS %q: %w", v, err)
		}
		s.RequestsPerSecond = rps
	}
	return nil
}

// Normalize trims names and extracts the id from a pasted spreadsheet URL.
func (s *Settings) Normalize() {
	s.SpreadsheetID = schema.ExtractSpreadsheetID(s.SpreadsheetID)
	s.TabName = schema.NormalizeTabName(s.TabName)
	s.Bidder = strings.TrimSpace(s.Bidder)
	s.TemplateStrategy = strings.ToLower(strings.TrimSpace(s.TemplateStrategy))
	s.ConnectsMode = strings.ToLower(strings.TrimSpace(s.ConnectsMode))
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
}

func (s Settings) Validate() error {
	if s.SpreadsheetID == "" && s.Workbook == "" {
		return fmt.Errorf("a spreadsheet id or a workbook path is required")
	}
	switch s.TemplateStrategy {
	case StrategyTemplateSheet, StrategyInSheet:
	default:
		return fmt.Errorf("unknown template strategy %q", s.TemplateStrategy)
	}
	switch s.ConnectsMode {
	case ConnectsReplace, ConnectsAccumulate:
	default:
		return fmt.Errorf("unknown connects mode %q", s.ConnectsMode)
	}
	if s.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
