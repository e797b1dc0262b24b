package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goaltrack/internal/goal"
	"github.com/fyrsmithlabs/goaltrack/internal/llm"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
)

// Completer is the text generation the generator needs. *llm.Client
// implements it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Message sources, used as a metric label.
const (
	SourceLLM      = "llm"
	SourceTemplate = "template"
)

// Generator writes reminder copy: the model first, the templates on any
// failure.
type Generator struct {
	llm       Completer
	templates *Templates
	maxLen    int
	logger    *logging.Logger
	metrics   *Metrics
}

// NewGenerator creates a generator. Messages stay under maxLen runes.
// completer may be nil to always use templates.
func NewGenerator(completer Completer, templates *Templates, maxLen int, logger *logging.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if maxLen <= 1 {
		maxLen = 100
	}
	return &Generator{llm: completer, templates: templates, maxLen: maxLen, logger: logger}
}

// Generate returns a non-empty message for g and the source that wrote it.
func (gen *Generator) Generate(ctx context.Context, g *goal.Goal, tone Tone, today time.Time) (string, string) {
	mc := BuildContext(g, today)
	if gen.llm != nil {
		text, err := gen.llm.Complete(ctx, llm.Request{
			System:      gen.systemPrompt(tone),
			Prompt:      mc.Describe() + "\nWrite today's reminder.",
			MaxTokens:   80,
			Temperature: 0.9,
		})
		if err == nil {
			if msg := truncate(clean(text), gen.maxLen); msg != "" {
				gen.record(SourceLLM)
				return msg, SourceLLM
			}
		} else {
			gen.logger.Debug(ctx, "llm message failed, using template", zap.Error(err))
		}
	}

	msg := FallbackMessage
	if gen.templates != nil {
		msg = gen.templates.Render(mc)
	}
	if msg = truncate(msg, gen.maxLen); msg == "" {
		msg = FallbackMessage
	}
	gen.record(SourceTemplate)
	return msg, SourceTemplate
}

func (gen *Generator) record(source string) {
	if gen.metrics != nil {
		gen.metrics.MessagesGenerated.WithLabelValues(source).Inc()
	}
}

func (gen *Generator) systemPrompt(tone Tone) string {
	return fmt.Sprintf(
		"You write short push notification reminders for a goal tracking app. "+
			"Tone: %s. Reply with the reminder text only: one sentence, fewer than %d characters, "+
			"no quotes, no hashtags, at most one emoji. Mention the goal by name.",
		tone.Style(), gen.maxLen)
}

// clean strips wrapping quotes and folds whitespace onto one line.
func clean(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, "\"'` ")
}

// truncate keeps s under limit runes, cutting at a word boundary when one
// is close and marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) < limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit-2])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:-") + "…"
}

// SetMetrics enables message source counting.
func (gen *Generator) SetMetrics(m *Metrics) {
	gen.metrics = m
}
