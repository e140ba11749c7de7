package stages

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/c360/convstreams/model"
	"github.com/c360/convstreams/pipeline"
)

// DateExtractorKey identifies the date extraction stage.
const DateExtractorKey = "date"

// datePatterns pair a regex with a layout for time.Parse. Numeric forms
// before named-month forms so the longest match at a position wins the
// canonical token order.
var datePatterns = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), "2006-01-02"},
	{regexp.MustCompile(`\b\d{2}\.\d{2}\.\d{4}\b`), "02.01.2006"},
	{regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`), "01/02/2006"},
	{regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December) \d{1,2}, \d{4}\b`), "January 2, 2006"},
}

// relativeDates map informal mentions to day offsets from the message time.
var relativeDates = map[string]int{
	"today":    0,
	"tomorrow": 1,
}

var relativePattern = regexp.MustCompile(`(?i)\b(today|tomorrow)\b`)

// DateExtractor extracts date mentions as Date tokens. Absolute forms are
// parsed directly; "today"/"tomorrow" resolve relative to the message
// timestamp. Values are ISO dates (yyyy-mm-dd).
type DateExtractor struct {
	priority int
}

// NewDateExtractor creates the date extraction stage.
func NewDateExtractor() *DateExtractor {
	return &DateExtractor{priority: 90}
}

// Key implements pipeline.Stage.
func (d *DateExtractor) Key() string { return DateExtractorKey }

// Priority implements pipeline.Stage.
func (d *DateExtractor) Priority() int { return d.priority }

// Process implements pipeline.Stage.
func (d *DateExtractor) Process(ctx context.Context, buf *pipeline.Buffer) error {
	for idx := buf.Offset; idx < len(buf.Conversation.Messages); idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := &buf.Conversation.Messages[idx]
		if msg.Origin == model.OriginBot {
			continue
		}

		for _, pattern := range datePatterns {
			for _, loc := range pattern.re.FindAllStringIndex(msg.Content, -1) {
				raw := msg.Content[loc[0]:loc[1]]
				parsed, err := time.Parse(pattern.layout, raw)
				if err != nil {
					continue // matched shape but not a real date, e.g. month 13
				}
				buf.AddToken(model.Token{
					MessageIdx: idx,
					Start:      loc[0],
					End:        loc[1],
					Type:       model.TokenDate,
					Value:      parsed.Format("2006-01-02"),
					Confidence: 0.85,
					State:      model.StateSuggested,
					Origin:     model.OriginSystem,
				})
			}
		}

		for _, loc := range relativePattern.FindAllStringIndex(msg.Content, -1) {
			mention := strings.ToLower(msg.Content[loc[0]:loc[1]])
			offset, ok := relativeDates[mention]
			if !ok {
				continue
			}
			base := msg.Time
			if base.IsZero() {
				base = buf.Conversation.LastModified
			}
			buf.AddToken(model.Token{
				MessageIdx: idx,
				Start:      loc[0],
				End:        loc[1],
				Type:       model.TokenDate,
				Value:      base.AddDate(0, 0, offset).Format("2006-01-02"),
				Confidence: 0.6,
				State:      model.StateSuggested,
				Origin:     model.OriginSystem,
				Hints:      []string{"relative"},
			})
		}
	}
	return nil
}
