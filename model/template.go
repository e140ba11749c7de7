package model

import "time"

// Slot is a named, typed binding point within a Template. TokenIndex points
// into the Analysis token list, -1 when unbound.
type Slot struct {
	Role           string    `json:"role"`
	TokenType      TokenType `json:"tokenType"`
	Required       bool      `json:"required"`
	TokenIndex     int       `json:"tokenIndex"`
	InquiryMessage string    `json:"inquiryMessage,omitempty"`
}

// NewSlot creates an unbound slot.
func NewSlot(role string, tokenType TokenType, required bool) Slot {
	return Slot{
		Role:       role,
		TokenType:  tokenType,
		Required:   required,
		TokenIndex: -1,
	}
}

// Query is a generated search request tied to a Template. Creator names the
// builder that produced it. State carries externally-observed feedback and
// is the only field preserved across rebuilds; confidence, title and url
// are regenerated fresh every time.
type Query struct {
	Creator      string    `json:"creator"`
	State        State     `json:"state"`
	Confidence   float64   `json:"confidence"`
	DisplayTitle string    `json:"displayTitle"`
	URL          string    `json:"url"`
	Created      time.Time `json:"created"`
}

// Template is a candidate intent: a typed bundle of slots filled from
// extracted tokens plus the queries generated for it. Template identity is
// positional within the Analysis template list; rebuilds must keep list
// order stable for query-state reconciliation to work.
type Template struct {
	Type        string  `json:"type"`
	Probability float64 `json:"probability"`
	State       State   `json:"state"`
	Slots       []Slot  `json:"slots"`
	Queries     []Query `json:"queries"`
}

// Slot returns the first slot with the given role, or nil.
func (t *Template) Slot(role string) *Slot {
	for i := range t.Slots {
		if t.Slots[i].Role == role {
			return &t.Slots[i]
		}
	}
	return nil
}

// BoundToken resolves the slot with the given role against the token list,
// returning nil when the slot is absent or unbound.
func (t *Template) BoundToken(role string, tokens []Token) *Token {
	s := t.Slot(role)
	if s == nil || s.TokenIndex < 0 || s.TokenIndex >= len(tokens) {
		return nil
	}
	return &tokens[s.TokenIndex]
}

// Valid reports whether every required slot is bound to a non-rejected
// token.
func (t *Template) Valid(tokens []Token) bool {
	for _, s := range t.Slots {
		if !s.Required {
			continue
		}
		if s.TokenIndex < 0 || s.TokenIndex >= len(tokens) {
			return false
		}
		if tokens[s.TokenIndex].State == StateRejected {
			return false
		}
	}
	return true
}
