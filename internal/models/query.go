package models

// QueryMode tells the retrieval and composition layers how a query was
// classified.
type QueryMode string

const (
	ModeGeneral QueryMode = "general"
	ModePerson  QueryMode = "person"
)

// Query is a classified search request with its retrieval parameters.
type Query struct {
	Raw     string
	Mode    QueryMode
	Subject string // set when Mode == ModePerson
	TopK    int
	Alpha   float64
}
