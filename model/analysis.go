package model

import "time"

// Analysis is the derived aggregate for one conversation snapshot. Date
// equals the conversation's LastModified at analysis time, so the pair
// (Conversation, Date) identifies the exact snapshot the tokens and
// templates were computed from. An Analysis is immutable once stored;
// later snapshots supersede it.
type Analysis struct {
	Conversation string     `json:"conversation"`
	Client       string     `json:"client,omitempty"`
	Date         time.Time  `json:"date"`
	Tokens       []Token    `json:"tokens"`
	Templates    []Template `json:"templates"`
}

// NewAnalysis creates an empty analysis for a conversation snapshot.
func NewAnalysis(conversationID, client string, date time.Time) *Analysis {
	return &Analysis{
		Conversation: conversationID,
		Client:       client,
		Date:         date,
		Tokens:       []Token{},
		Templates:    []Template{},
	}
}

// SearchResult is the outcome of executing a query against the external
// search backend. The backend is reached only through the QueryBuilder
// contract; result rows stay schemaless here.
type SearchResult struct {
	NumFound int64            `json:"numFound"`
	Start    int64            `json:"start"`
	Rows     []map[string]any `json:"rows"`
}
