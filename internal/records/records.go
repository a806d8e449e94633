package records

import (
	"math"
	"strings"
)

// Job is one job detail page as scraped from the marketplace.
type Job struct {
	Name              string `json:"name" yaml:"name"`
	Link              string `json:"link,omitempty" yaml:"link,omitempty"`
	JobID             string `json:"jobId,omitempty" yaml:"jobId,omitempty"`
	Date              string `json:"date,omitempty" yaml:"date,omitempty"`
	Payment           string `json:"payment,omitempty" yaml:"payment,omitempty"`
	Country           string `json:"country,omitempty" yaml:"country,omitempty"`
	JobCreatedSince   string `json:"jobCreatedSince,omitempty" yaml:"jobCreatedSince,omitempty"`
	Proposals         string `json:"proposals,omitempty" yaml:"proposals,omitempty"`
	InvitesSent       string `json:"invitesSent,omitempty" yaml:"invitesSent,omitempty"`
	Interviewing      string `json:"interviewing,omitempty" yaml:"interviewing,omitempty"`
	LastViewed        string `json:"lastViewed,omitempty" yaml:"lastViewed,omitempty"`
	UnansweredInvites string `json:"unansweredInvites,omitempty" yaml:"unansweredInvites,omitempty"`
	ProposalID        string `json:"proposalId,omitempty" yaml:"proposalId,omitempty"`
	JobStatus         string `json:"jobStatus,omitempty" yaml:"jobStatus,omitempty"`
	JobStatusAlt      string `json:"jobStatusAlt,omitempty" yaml:"jobStatusAlt,omitempty"`
}

// ProposalViewEvent reports whether the client opened a submitted proposal.
type ProposalViewEvent struct {
	ProposalID string `json:"proposalId,omitempty" yaml:"proposalId,omitempty"`
	Title      string `json:"title,omitempty" yaml:"title,omitempty"`
	Viewed     bool   `json:"viewed" yaml:"viewed"`
}

// ConnectsEntry is one line of the connects history.
type ConnectsEntry struct {
	JobID                 string  `json:"jobId,omitempty" yaml:"jobId,omitempty"`
	Title                 string  `json:"title,omitempty" yaml:"title,omitempty"`
	Link                  string  `json:"link,omitempty" yaml:"link,omitempty"`
	Date                  string  `json:"date,omitempty" yaml:"date,omitempty"`
	IsBoosted             bool    `json:"isBoosted,omitempty" yaml:"isBoosted,omitempty"`
	ConnectsSpent         float64 `json:"connectsSpent,omitempty" yaml:"connectsSpent,omitempty"`
	ConnectsRefund        float64 `json:"connectsRefund,omitempty" yaml:"connectsRefund,omitempty"`
	BoostedConnectsSpent  float64 `json:"boostedConnectsSpent,omitempty" yaml:"boostedConnectsSpent,omitempty"`
	BoostedConnectsRefund float64 `json:"boostedConnectsRefund,omitempty" yaml:"boostedConnectsRefund,omitempty"`
}

// NormalizeName is the comparison form of a job title. Matching on it is
// case-sensitive.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// Key is the job id, or the normalized name when the id is absent.
func (j Job) Key() string {
	if id := strings.TrimSpace(j.JobID); id != "" {
		return id
	}
	return NormalizeName(j.Name)
}

func (e ConnectsEntry) Key() string {
	if id := strings.TrimSpace(e.JobID); id != "" {
		return id
	}
	return NormalizeName(e.Title)
}

// ConnectsTotal is the sum of every entry sharing one key.
type ConnectsTotal struct {
	Key           string
	JobID         string
	Name          string
	Link          string
	Date          string
	Spent         float64
	Refund        float64
	BoostedSpent  float64
	BoostedRefund float64
}

// NeedsBoostedColumns reports whether the total carries boosted amounts.
func (t ConnectsTotal) NeedsBoostedColumns() bool {
	return t.BoostedSpent > 0 || t.BoostedRefund > 0
}

// AggregateConnects sums entries per key in order of first appearance. The
// first non-empty name, link and date win. Entries with no key are dropped.
func AggregateConnects(entries []ConnectsEntry) []ConnectsTotal {
	index := make(map[string]int)
	var totals []ConnectsTotal

	for _, e := range entries {
		key := e.Key()
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(totals)
			index[key] = i
			totals = append(totals, ConnectsTotal{Key: key, JobID: strings.TrimSpace(e.JobID)})
		}
		t := &totals[i]
		t.Spent += finite(e.ConnectsSpent)
		t.Refund += finite(e.ConnectsRefund)
		t.BoostedSpent += finite(e.BoostedConnectsSpent)
		t.BoostedRefund += finite(e.BoostedConnectsRefund)
		if t.Name == "" {
			t.Name = e.Title
		}
		if t.Link == "" {
			t.Link = e.Link
		}
		if t.Date == "" {
			t.Date = e.Date
		}
	}
	return totals
}

// DedupeJobs keeps one record per key. The last record for a key wins but
// keeps the position of the key's first appearance.
func DedupeJobs(jobs []Job) []Job {
	index := make(map[string]int)
	var out []Job
	for _, j := range jobs {
		key := j.Key()
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			out[i] = j
			continue
		}
		index[key] = len(out)
		out = append(out, j)
	}
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
