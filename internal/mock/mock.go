// Package mock generates deterministic job, proposal and connects fixtures
// for exercising a sheet without scraping the marketplace.
package mock

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"upwork_sheet_sync/internal/records"
)

const DateLayout = "Jan 2, 2006"

var (
	titles = []string{
		"AI workflow automation",
		"Shopify storefront cleanup",
		"Mobile app MVP build",
		"Data dashboard redesign",
		"Salesforce integration",
		"Marketing analytics pipeline",
		"Node.js API revamp",
		"Customer support chatbot",
		"Fintech reporting upgrade",
		"Risk scoring service",
	}
	countries    = []string{"United States", "Canada", "Saudi Arabia", "UK", "UAE"}
	createdSince = []string{"1 day ago", "2 days ago", "1 week ago", "2 weeks ago", "1 month ago"}

	slugPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

type Options struct {
	Seed        string
	Jobs        int
	Proposals   int
	Connects    int
	RefundRate  float64
	BoostedRate float64
	// Now anchors generated dates. Nil means time.Now.
	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Seed:        "upwork-mock",
		Jobs:        5,
		Proposals:   8,
		Connects:    12,
		RefundRate:  0.2,
		BoostedRate: 0.3,
	}
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Generate builds a payload. Proposals and connects refer to generated
// jobs; about 40% of proposals are viewed.
func Generate(opts Options) *records.Payload {
	rng := NewRand(opts.Seed)
	now := opts.now()

	jobs := make([]records.Job, max(opts.Jobs, 1))
	for i := range jobs {
		name := pick(rng, titles)
		jobID := rng.Digits(18)
		proposalsMin := rng.Intn(2, 5)
		proposalsMax := proposalsMin + rng.Intn(4, 12)
		invites := rng.Intn(0, 8)
		interviewing := rng.Intn(0, 3)
		unanswered := max(0, invites-rng.Intn(0, 3))
		jobs[i] = records.Job{
			Name:              name,
			Link:              fmt.Sprintf("https://www.upwork.com/jobs/%s_~0%s/", slugify(name), jobID),
			JobID:             jobID,
			Date:              randomDate(rng, now),
			Payment:           payment(rng),
			Country:           pick(rng, countries),
			JobCreatedSince:   pick(rng, createdSince),
			Proposals:         fmt.Sprintf("%d to %d", proposalsMin, proposalsMax),
			InvitesSent:       fmt.Sprint(invites),
			Interviewing:      fmt.Sprint(interviewing),
			LastViewed:        fmt.Sprintf("%d days ago", rng.Intn(1, 7)),
			UnansweredInvites: fmt.Sprint(unanswered),
			ProposalID:        proposalID(rng),
		}
	}

	proposals := make([]records.ProposalViewEvent, max(opts.Proposals, 1))
	for i := range proposals {
		job := pick(rng, jobs)
		proposals[i] = records.ProposalViewEvent{
			ProposalID: job.ProposalID,
			Title:      job.Name,
			Viewed:     rng.Float64() > 0.6,
		}
	}

	connects := make([]records.ConnectsEntry, max(opts.Connects, 1))
	for i := range connects {
		job := pick(rng, jobs)
		boosted := rng.Float64() < opts.BoostedRate
		refund := rng.Float64() < opts.RefundRate
		magnitude := float64(rng.Intn(2, 24))
		e := records.ConnectsEntry{
			JobID:     job.JobID,
			Title:     job.Name,
			Link:      job.Link,
			Date:      randomDate(rng, now),
			IsBoosted: boosted,
		}
		switch {
		case boosted && refund:
			e.BoostedConnectsRefund = magnitude
		case boosted:
			e.BoostedConnectsSpent = magnitude
		case refund:
			e.ConnectsRefund = magnitude
		default:
			e.ConnectsSpent = magnitude
		}
		connects[i] = e
	}

	return &records.Payload{Jobs: jobs, Proposals: proposals, Connects: connects}
}

// BulkEdit returns the jobs with fresh refresh-column values, as if each
// listing had changed since it was first recorded. Ids and names are kept.
func BulkEdit(seed string, jobs []records.Job, now time.Time) []records.Job {
	rng := NewRand(seed + "-bulk-edit")
	out := make([]records.Job, len(jobs))
	for i, job := range jobs {
		proposalsMin := rng.Intn(1, 6)
		proposalsMax := proposalsMin + rng.Intn(2, 10)
		invites := rng.Intn(0, 10)
		interviewing := rng.Intn(0, 4)
		unanswered := max(0, invites-rng.Intn(0, 4))

		job.Date = randomDate(rng, now)
		job.Payment = payment(rng)
		job.Country = pick(rng, countries)
		job.JobCreatedSince = pick(rng, createdSince)
		job.Proposals = fmt.Sprintf("%d to %d", proposalsMin, proposalsMax)
		job.InvitesSent = fmt.Sprint(invites)
		job.Interviewing = fmt.Sprint(interviewing)
		job.LastViewed = fmt.Sprintf("%d days ago", rng.Intn(1, 10))
		job.UnansweredInvites = fmt.Sprint(unanswered)
		out[i] = job
	}
	return out
}

// SelectViewed marks a seeded share of the proposals as viewed and returns
// only those.
func SelectViewed(seed string, proposals []records.ProposalViewEvent, rate float64) []records.ProposalViewEvent {
	rng := NewRand(seed + "-viewed")
	var out []records.ProposalViewEvent
	for _, p := range proposals {
		if rng.Float64() < rate {
			p.Viewed = true
			out = append(out, p)
		}
	}
	return out
}

func randomDate(rng *Rand, now time.Time) string {
	return now.AddDate(0, 0, -rng.Intn(0, 30)).Format(DateLayout)
}

func payment(rng *Rand) string {
	if rng.Float64() > 0.2 {
		return "Verified"
	}
	return "Not verified"
}

func proposalID(rng *Rand) string {
	return "200" + rng.Digits(16)
}

func slugify(s string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
