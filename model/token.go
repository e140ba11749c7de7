package model

import "sort"

// State represents user feedback on a derived item (token, template, query).
// Items created by the system start as Suggested; external actors move them
// to Confirmed or Rejected.
type State string

// Feedback states
const (
	StateSuggested State = "Suggested"
	StateConfirmed State = "Confirmed"
	StateRejected  State = "Rejected"
)

// TokenType classifies an extracted token
type TokenType string

// Token types
const (
	TokenDate         TokenType = "Date"
	TokenTopic        TokenType = "Topic"
	TokenEntity       TokenType = "Entity"
	TokenPlace        TokenType = "Place"
	TokenOrganization TokenType = "Organization"
	TokenPerson       TokenType = "Person"
	TokenProduct      TokenType = "Product"
	TokenAttribute    TokenType = "Attribute"
	TokenTerm         TokenType = "Term"
	TokenKeyword      TokenType = "Keyword"
	TokenOther        TokenType = "Other"
)

// TokenOrigin identifies who created a token
type TokenOrigin string

// Token origins. Tokens created by the pipeline use OriginSystem; tokens
// contributed by chat users carry OriginTokenUser or OriginTokenAgent.
const (
	OriginSystem     TokenOrigin = "System"
	OriginTokenAgent TokenOrigin = "Agent"
	OriginTokenUser  TokenOrigin = "User"
)

// Token is a unit extracted from a conversation message. Start/End are
// character offsets into the message content, End exclusive.
type Token struct {
	MessageIdx int         `json:"messageIdx"`
	Start      int         `json:"start"`
	End        int         `json:"end"`
	Type       TokenType   `json:"type"`
	Value      any         `json:"value"`
	Confidence float64     `json:"confidence"`
	State      State       `json:"state"`
	Origin     TokenOrigin `json:"origin"`
	Hints      []string    `json:"hints,omitempty"`
}

// HasHint reports whether the token carries the given hint.
func (t *Token) HasHint(hint string) bool {
	for _, h := range t.Hints {
		if h == hint {
			return true
		}
	}
	return false
}

// CompareTokens orders tokens by message index, then start ascending, then
// end descending so that the longest match at a position sorts first.
func CompareTokens(a, b Token) int {
	if a.MessageIdx != b.MessageIdx {
		if a.MessageIdx < b.MessageIdx {
			return -1
		}
		return 1
	}
	if a.Start != b.Start {
		if a.Start < b.Start {
			return -1
		}
		return 1
	}
	if a.End != b.End {
		// longer match first
		if a.End > b.End {
			return -1
		}
		return 1
	}
	return 0
}

// SortTokens sorts tokens into their canonical order. The sort is stable so
// tokens at identical positions keep their extraction order.
func SortTokens(tokens []Token) {
	sort.SliceStable(tokens, func(i, j int) bool {
		return CompareTokens(tokens[i], tokens[j]) < 0
	})
}

// ClampConfidence bounds a confidence value to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
