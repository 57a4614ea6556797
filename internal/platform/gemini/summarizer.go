package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/owl-api/internal/config"
	"github.com/phrazzld/owl-api/internal/pipeline"
	"github.com/phrazzld/owl-api/internal/redact"
	"google.golang.org/genai"
)

// contentGenerator is the subset of *genai.Models the summarizer calls.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Summarizer implements pipeline.Summarizer with a Gemini model.
type Summarizer struct {
	logger     *slog.Logger
	models     contentGenerator
	model      string
	maxRetries int
	baseDelay  time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

var _ pipeline.Summarizer = (*Summarizer)(nil)

// NewSummarizer creates a Gemini client from cfg and wraps it in a Summarizer.
func NewSummarizer(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Summarizer, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}
	return newSummarizer(logger, client.Models, cfg)
}

func newSummarizer(logger *slog.Logger, models contentGenerator, cfg config.LLMConfig) (*Summarizer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 3
	}
	delay := time.Duration(cfg.RetryDelaySeconds) * time.Second
	return &Summarizer{
		logger:     logger.With("component", "gemini", "model", cfg.ModelName),
		models:     models,
		model:      cfg.ModelName,
		maxRetries: maxRetries,
		baseDelay:  delay,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Summarize implements pipeline.Summarizer.
func (s *Summarizer) Summarize(ctx context.Context, in pipeline.SummaryInput) (string, error) {
	prompt, err := renderPrompt(in)
	if err != nil {
		return "", err
	}
	return s.callWithRetry(ctx, prompt)
}

// callWithRetry calls the model up to maxRetries+1 times. Blocked and empty
// responses are returned immediately; anything else is retried after
// baseDelay * 2^attempt scaled by a jitter factor in [0.5, 1).
func (s *Summarizer) callWithRetry(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.4)}

	for attempt := 0; ; attempt++ {
		s.logger.DebugContext(ctx, "calling Gemini", "attempt", attempt+1, "max_attempts", s.maxRetries+1)

		resp, err := s.models.GenerateContent(ctx, s.model, genai.Text(prompt), cfg)
		if err == nil {
			text, perr := extractText(resp)
			if perr != nil {
				s.logger.WarnContext(ctx, "unusable Gemini response", redact.Attr(perr))
				return "", perr
			}
			return text, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		s.logger.WarnContext(ctx, "Gemini call failed", "attempt", attempt+1, redact.Attr(err))
		if attempt >= s.maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d)", ErrTransientFailure, s.maxRetries)
		}

		select {
		case <-time.After(s.backoff(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (s *Summarizer) backoff(attempt int) time.Duration {
	s.rngMu.Lock()
	jitter := 0.5 + s.rng.Float64()*0.5
	s.rngMu.Unlock()
	return time.Duration(float64(s.baseDelay) * math.Pow(2, float64(attempt)) * jitter)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	switch {
	case resp == nil:
		return "", fmt.Errorf("%w: nil response", ErrInvalidResponse)
	case len(resp.Candidates) == 0 || resp.Candidates[0] == nil:
		return "", fmt.Errorf("%w: no content generated", ErrInvalidResponse)
	case resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
		return "", ErrContentBlocked
	case resp.Candidates[0].Content == nil:
		return "", fmt.Errorf("%w: empty content in response", ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty text", ErrInvalidResponse)
	}
	return text, nil
}
