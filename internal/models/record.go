package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordKind distinguishes the two structured record types extracted from
// document versions.
type RecordKind string

const (
	KindPerson  RecordKind = "person"
	KindProject RecordKind = "project"
)

// RecordPayload is the structured body of a person or project record. All
// fields are optional except what the validate tags require; loosely-typed
// source data is normalized into this shape at the ingestion boundary.
type RecordPayload struct {
	Role      string   `json:"role,omitempty"`
	Education string   `json:"education,omitempty"`
	Client    string   `json:"client,omitempty"`
	Location  string   `json:"location,omitempty"`
	CostUSD   float64  `json:"cost_usd,omitempty" validate:"gte=0"`
	Firms     []string `json:"firms,omitempty"`
	Projects  []string `json:"projects,omitempty"`
	Expertise []string `json:"expertise,omitempty"`
	Summary   string   `json:"summary,omitempty"`
}

// Record is a person or project extracted from some document version. Key is
// the normalized title and is what duplicate detection compares.
type Record struct {
	ID        uuid.UUID     `json:"id"`
	Kind      RecordKind    `json:"kind" validate:"required,oneof=person project"`
	Title     string        `json:"title" validate:"required"`
	Key       string        `json:"key"`
	Payload   RecordPayload `json:"payload"`
	Embedding []float32     `json:"-"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// SummaryText renders the payload as the flat text that gets embedded for a
// record. Kept here so merge and ingest embed the same representation.
func (r Record) SummaryText() string {
	out := r.Title
	p := r.Payload
	for _, s := range []string{p.Role, p.Education, p.Client, p.Location, p.Summary} {
		if s != "" {
			out += "\n" + s
		}
	}
	for _, list := range [][]string{p.Firms, p.Projects, p.Expertise} {
		for _, s := range list {
			out += "\n" + s
		}
	}
	return out
}
