package schema

import (
	"context"
	"strings"

	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/syncerr"

	"github.com/rs/zerolog/log"
)

const (
	Date                  = "Date"
	JobName               = "Job Name"
	Bidder                = "Bidder"
	Read                  = "Read"
	JobStatus             = "Job Status"
	Invites               = "Invites"
	Interview             = "Interview"
	Remarks               = "Remarks"
	Payment               = "Payment"
	Country               = "Country"
	JobCreatedSince       = "Job Created Since"
	JobID                 = "Job ID"
	Proposals             = "Proposals"
	ProposalID            = "Proposal ID"
	ConnectsSpent         = "Connects Spent"
	ConnectsRefund        = "Connects Refund"
	BoostedConnectsSpent  = "Boosted Connects Spent"
	BoostedConnectsRefund = "Boosted Connects Refund"
	TotalNetConnects      = "Total Net Connects"
)

// DefaultHeaders is the layout written by sheet preparation and carried by the
// reference template.
var DefaultHeaders = []string{
	Date, JobName, Bidder, "Boost", "Invited", "Customer", Read, "Reply", "Call", "Quote", "Sale",
	JobStatus, Invites, Interview, Remarks, Payment, Country, JobCreatedSince, JobID, Proposals,
	ProposalID, ConnectsSpent, ConnectsRefund, BoostedConnectsSpent, BoostedConnectsRefund,
	TotalNetConnects,
}

var DefaultColumnCount = len(DefaultHeaders)

// Schema is the header row of one tab, read fresh for every operation.
type Schema struct {
	Headers []string
}

func New(headers []string) *Schema {
	trimmed := make([]string, len(headers))
	for i, h := range headers {
		trimmed[i] = strings.TrimSpace(h)
	}
	return &Schema{Headers: trimmed}
}

// Resolve reads row 1 of the tab.
func Resolve(ctx context.Context, values destination.Values, spreadsheetID, tab string) (*Schema, error) {
	log.Debug().Str("tab", tab).Msg("Resolving header schema")

	rows, err := values.GetValues(ctx, spreadsheetID, HeaderRange(tab), destination.RenderFormatted)
	if err != nil {
		return nil, syncerr.Classify("resolve headers", err)
	}

	var headers []string
	if len(rows) > 0 {
		for _, v := range rows[0] {
			headers = append(headers, destination.CellString(v))
		}
	}
	s := New(headers)

	if dups := s.Duplicates(); len(dups) > 0 {
		log.Debug().Strs("headers", dups).Msg("Header row contains repeated names")
	}
	log.Debug().Int("columns", len(s.Headers)).Msg("Resolved header schema")
	return s, nil
}

// IndexOf returns the 1-based position of the Nth header equal to name, or 0.
func (s *Schema) IndexOf(name string, occurrence int) int {
	if occurrence < 1 {
		occurrence = 1
	}
	seen := 0
	for i, h := range s.Headers {
		if h == name {
			seen++
			if seen == occurrence {
				return i + 1
			}
		}
	}
	return 0
}

func (s *Schema) Index(name string) int {
	return s.IndexOf(name, 1)
}

func (s *Schema) Has(name string) bool {
	return s.Index(name) > 0
}

// Positions returns every 1-based position holding name.
func (s *Schema) Positions(name string) []int {
	var out []int
	for i, h := range s.Headers {
		if h == name {
			out = append(out, i+1)
		}
	}
	return out
}

// Column returns the A1 letters of the first column named name, or "".
func (s *Schema) Column(name string) string {
	return ColumnLetter(s.Index(name))
}

// ColumnCount is the live header length, or the default layout width for a
// tab with no header row yet.
func (s *Schema) ColumnCount() int {
	if len(s.Headers) == 0 {
		return DefaultColumnCount
	}
	return len(s.Headers)
}

func (s *Schema) LastColumn() string {
	return ColumnLetter(s.ColumnCount())
}

// HeaderAt returns the header at a 1-based position, "" past the end.
func (s *Schema) HeaderAt(pos int) string {
	if pos < 1 || pos > len(s.Headers) {
		return ""
	}
	return s.Headers[pos-1]
}

// Missing lists the names that have no column.
func (s *Schema) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if !s.Has(n) {
			out = append(out, n)
		}
	}
	return out
}

// Require fails with schema_incomplete when any name has no column.
func (s *Schema) Require(op string, names ...string) error {
	if missing := s.Missing(names...); len(missing) > 0 {
		return syncerr.New(syncerr.KindSchemaIncomplete, op, "missing columns: "+strings.Join(missing, ", "))
	}
	return nil
}

// Duplicates lists non-empty header names appearing more than once, in order
// of first appearance.
func (s *Schema) Duplicates() []string {
	counts := make(map[string]int)
	var order []string
	for _, h := range s.Headers {
		if h == "" {
			continue
		}
		if counts[h] == 0 {
			order = append(order, h)
		}
		counts[h]++
	}
	var out []string
	for _, h := range order {
		if counts[h] > 1 {
			out = append(out, h)
		}
	}
	return out
}

// DefaultMismatches lists positions where the live header differs from the
// default layout, formatted as "Q: expected X, found Y".
func (s *Schema) DefaultMismatches() []string {
	var out []string
	for i, want := range DefaultHeaders {
		got := ""
		if i < len(s.Headers) {
			got = s.Headers[i]
		}
		if got != want {
			out = append(out, ColumnLetter(i+1)+": expected "+want+", found "+quoteEmpty(got))
		}
	}
	return out
}

func quoteEmpty(s string) string {
	if s == "" {
		return "(blank)"
	}
	return s
}
