package mapping

import (
	"upwork_sheet_sync/internal/records"
	"upwork_sheet_sync/internal/schema"
)

// Fields are the logical values of one row before column placement. Connects
// amounts are magnitudes; the sign comes from the column.
type Fields struct {
	Date            string
	Name            string
	Link            string
	Bidder          string
	JobStatus       string
	JobStatusAlt    string
	Invites         string
	Interview       string
	Payment         string
	Country         string
	JobCreatedSince string
	JobID           string
	Proposals       string
	ProposalID      string
	ConnectsSpent   float64
	ConnectsRefund  float64
	BoostedSpent    float64
	BoostedRefund   float64
}

func FromJob(job records.Job, bidder string) Fields {
	return Fields{
		Date:            job.Date,
		Name:            job.Name,
		Link:            job.Link,
		Bidder:          bidder,
		JobStatus:       job.JobStatus,
		JobStatusAlt:    job.JobStatusAlt,
		Invites:         job.InvitesSent,
		Interview:       job.Interviewing,
		Payment:         job.Payment,
		Country:         job.Country,
		JobCreatedSince: job.JobCreatedSince,
		JobID:           job.JobID,
		Proposals:       job.Proposals,
		ProposalID:      job.ProposalID,
	}
}

func FromConnects(total records.ConnectsTotal, bidder string) Fields {
	return Fields{
		Date:           total.Date,
		Name:           total.Name,
		Link:           total.Link,
		Bidder:         bidder,
		JobID:          total.JobID,
		ProposalID:     NoProposalID,
		ConnectsSpent:  total.Spent,
		ConnectsRefund: total.Refund,
		BoostedSpent:   total.BoostedSpent,
		BoostedRefund:  total.BoostedRefund,
	}
}

// Cell renders the value for the given header. occurrence is the 1-based
// count of this header name so far in the row, used by repeated status
// columns. Unknown headers render empty.
func (f Fields) Cell(header string, occurrence int) string {
	switch header {
	case schema.Date:
		return TextCell(f.Date)
	case schema.JobName:
		return LinkCell(f.Name, f.Link)
	case schema.Bidder:
		return f.Bidder
	case schema.JobStatus:
		if occurrence <= 1 {
			return f.JobStatus
		}
		if f.JobStatusAlt != "" {
			return f.JobStatusAlt
		}
		return f.JobStatus
	case schema.Invites:
		return f.Invites
	case schema.Interview:
		return f.Interview
	case schema.Payment:
		return f.Payment
	case schema.Country:
		return f.Country
	case schema.JobCreatedSince:
		return f.JobCreatedSince
	case schema.JobID:
		return IDCell(f.JobID)
	case schema.Proposals:
		return f.Proposals
	case schema.ProposalID:
		id := f.ProposalID
		if id == "" {
			id = NoProposalID
		}
		return IDCell(id)
	case schema.ConnectsSpent:
		return ConnectsCell(f.ConnectsSpent, Spent)
	case schema.ConnectsRefund:
		return ConnectsCell(f.ConnectsRefund, Refund)
	case schema.BoostedConnectsSpent:
		return ConnectsCell(f.BoostedSpent, Spent)
	case schema.BoostedConnectsRefund:
		return ConnectsCell(f.BoostedRefund, Refund)
	default:
		return ""
	}
}

// MapRow lays the fields out across the schema. A tab without a header row
// is mapped onto the default layout.
func MapRow(s *schema.Schema, f Fields) []interface{} {
	headers := s.Headers
	if len(headers) == 0 {
		headers = schema.DefaultHeaders
	}
	seen := make(map[string]int)
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		seen[h]++
		row[i] = f.Cell(h, seen[h])
	}
	return row
}
