package stages

import (
	"context"
	"regexp"
	"strings"

	"github.com/c360/convstreams/model"
	"github.com/c360/convstreams/pipeline"
)

// KeywordKey identifies the keyword extraction stage.
const KeywordKey = "keyword"

// wordPattern matches candidate keyword runs: letters and digits, length 3+.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}\-]{2,}`)

// defaultStopwords filters high-frequency words that carry no topical
// signal. Clients can extend the list through stage configuration.
var defaultStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "have": true, "this": true, "that": true, "with": true,
	"from": true, "they": true, "would": true, "there": true, "their": true,
	"what": true, "about": true, "which": true, "when": true, "will": true,
	"und": true, "der": true, "die": true, "das": true, "ich": true,
	"ist": true, "ein": true, "eine": true, "nicht": true, "mit": true,
}

// Keyword extracts keyword tokens from user messages. Repeated mentions of
// the same keyword raise its confidence; every occurrence still produces
// its own token so offsets stay addressable.
type Keyword struct {
	priority int
}

// NewKeyword creates the keyword stage.
func NewKeyword() *Keyword {
	return &Keyword{priority: 100}
}

// Key implements pipeline.Stage.
func (k *Keyword) Key() string { return KeywordKey }

// Priority implements pipeline.Stage.
func (k *Keyword) Priority() int { return k.priority }

// Process implements pipeline.Stage.
func (k *Keyword) Process(ctx context.Context, buf *pipeline.Buffer) error {
	stopwords := defaultStopwords
	if extra, ok := buf.StageConfig(KeywordKey)["stopwords"].([]string); ok {
		stopwords = make(map[string]bool, len(defaultStopwords)+len(extra))
		for w := range defaultStopwords {
			stopwords[w] = true
		}
		for _, w := range extra {
			stopwords[strings.ToLower(w)] = true
		}
	}

	// first pass counts mentions across the unanalyzed window
	counts := make(map[string]int)
	for idx := buf.Offset; idx < len(buf.Conversation.Messages); idx++ {
		msg := &buf.Conversation.Messages[idx]
		if msg.Origin == model.OriginBot {
			continue
		}
		for _, loc := range wordPattern.FindAllStringIndex(msg.Content, -1) {
			word := strings.ToLower(msg.Content[loc[0]:loc[1]])
			if !stopwords[word] {
				counts[word]++
			}
		}
	}

	for idx := buf.Offset; idx < len(buf.Conversation.Messages); idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := &buf.Conversation.Messages[idx]
		if msg.Origin == model.OriginBot {
			continue
		}
		for _, loc := range wordPattern.FindAllStringIndex(msg.Content, -1) {
			word := strings.ToLower(msg.Content[loc[0]:loc[1]])
			count, ok := counts[word]
			if !ok {
				continue
			}
			buf.AddToken(model.Token{
				MessageIdx: idx,
				Start:      loc[0],
				End:        loc[1],
				Type:       model.TokenKeyword,
				Value:      word,
				Confidence: keywordConfidence(count),
				State:      model.StateSuggested,
				Origin:     model.OriginSystem,
			})
		}
	}
	return nil
}

// keywordConfidence maps a mention count to [0.3, 0.9].
func keywordConfidence(count int) float64 {
	c := 0.3 + 0.15*float64(count-1)
	if c > 0.9 {
		c = 0.9
	}
	return model.ClampConfidence(c)
}
