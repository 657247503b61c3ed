package summary

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/crawler"
)

// Summarizer turns captured pages into an Outcome.
type Summarizer interface {
	Summarize(ctx context.Context, pages []crawler.CapturedPage, level DetailLevel) (Outcome, error)
}

// ModelSummarizer builds the prompt, calls a Completer and parses the reply.
type ModelSummarizer struct {
	client   Completer
	model    string
	maxChars int
	logger   *zap.Logger
}

// NewModelSummarizer wires a Completer. maxChars <= 0 means DefaultMaxChars.
func NewModelSummarizer(client Completer, model string, maxChars int, logger *zap.Logger) *ModelSummarizer {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelSummarizer{client: client, model: model, maxChars: maxChars, logger: logger.Named("summary")}
}

// Summarize implements Summarizer. Only transport failures return an error,
// and they always wrap ErrTransport.
func (s *ModelSummarizer) Summarize(ctx context.Context, pages []crawler.CapturedPage, level DetailLevel) (Outcome, error) {
	if level == "" {
		level = LevelBasic
	}
	content := BuildContent(pages, s.maxChars)
	reply, err := s.client.Complete(ctx, CompletionRequest{
		Model: s.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(level, content)},
		},
		Temperature: temperature,
		MaxTokens:   maxTokensFor(level),
	})
	if err != nil {
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		s.logger.Warn("summary request failed", zap.Error(err))
		return Outcome{}, err
	}
	out := Parse(reply, level)
	if out.Degraded() {
		s.logger.Warn("summary reply had no usable JSON; keeping raw text",
			zap.Int("reply_bytes", len(reply)),
		)
	}
	s.logger.Info("summary generated",
		zap.Int("pages", len(pages)),
		zap.String("level", string(level)),
		zap.String("kind", string(out.Kind)),
	)
	return out, nil
}
