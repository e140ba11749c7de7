package engine

import (
	"context"

	"github.com/c360/convstreams/model"
)

// Template and slot identifiers for the search intent.
const (
	SearchTemplateType = "search"
	SlotTopic          = "topic"
	SlotTerm           = "term"
)

// SearchBuilder maintains the "search" template: a bag of topic and term
// slots bound to the extracted keyword, term and topic tokens. There is at
// most one search template per analysis; repeated runs bind newly
// extracted tokens into additional slots.
type SearchBuilder struct{}

// NewSearchBuilder creates the search template builder.
func NewSearchBuilder() *SearchBuilder {
	return &SearchBuilder{}
}

// Definition implements TemplateBuilder.
func (b *SearchBuilder) Definition() TemplateDefinition {
	return TemplateDefinition{
		Type: SearchTemplateType,
		Slots: []model.Slot{
			model.NewSlot(SlotTopic, model.TokenTopic, false),
			model.NewSlot(SlotTerm, model.TokenKeyword, false),
		},
	}
}

func searchable(t *model.Token) bool {
	switch t.Type {
	case model.TokenKeyword, model.TokenTerm, model.TokenTopic:
		return t.State != model.StateRejected
	default:
		return false
	}
}

// Build implements TemplateBuilder.
func (b *SearchBuilder) Build(_ context.Context, _ *model.Conversation, analysis *model.Analysis, _ int) error {
	var candidates []int
	for i := range analysis.Tokens {
		if searchable(&analysis.Tokens[i]) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	// locate or create the single search template
	pos := -1
	for i := range analysis.Templates {
		if analysis.Templates[i].Type == SearchTemplateType {
			pos = i
			break
		}
	}
	if pos < 0 {
		def := b.Definition()
		analysis.Templates = append(analysis.Templates, def.NewTemplate())
		pos = len(analysis.Templates) - 1
	}
	tmpl := &analysis.Templates[pos]

	bound := make(map[int]bool)
	for _, s := range tmpl.Slots {
		if s.TokenIndex >= 0 {
			bound[s.TokenIndex] = true
		}
	}

	maxConfidence := tmpl.Probability
	for _, idx := range candidates {
		if bound[idx] {
			continue
		}
		tok := &analysis.Tokens[idx]

		role := SlotTerm
		tokenType := model.TokenKeyword
		if tok.Type == model.TokenTopic {
			role = SlotTopic
			tokenType = model.TokenTopic
		}

		if !bindFreeSlot(tmpl, role, idx) {
			slot := model.NewSlot(role, tokenType, false)
			slot.TokenIndex = idx
			tmpl.Slots = append(tmpl.Slots, slot)
		}
		if tok.Confidence > maxConfidence {
			maxConfidence = tok.Confidence
		}
	}
	tmpl.Probability = model.ClampConfidence(maxConfidence)
	return nil
}

// bindFreeSlot binds idx to the first unbound slot with the given role.
func bindFreeSlot(tmpl *model.Template, role string, idx int) bool {
	for i := range tmpl.Slots {
		if tmpl.Slots[i].Role == role && tmpl.Slots[i].TokenIndex < 0 {
			tmpl.Slots[i].TokenIndex = idx
			return true
		}
	}
	return false
}
