package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/owl-api/internal/config"
	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/phrazzld/owl-api/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type scriptedModels struct {
	mu        sync.Mutex
	responses []*genai.GenerateContentResponse
	errs      []error
	prompts   []string
	calls     int
}

func (m *scriptedModels) GenerateContent(
	_ context.Context,
	_ string,
	contents []*genai.Content,
	_ *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		m.prompts = append(m.prompts, contents[0].Parts[0].Text)
	}
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return nil, errors.New("no scripted response")
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func testConfig() config.LLMConfig {
	return config.LLMConfig{ModelName: "gemini-test", MaxRetries: 2, RetryDelaySeconds: 0}
}

func videoInput() pipeline.SummaryInput {
	return pipeline.SummaryInput{
		Kind:          domain.KindSingleVideo,
		Platform:      domain.PlatformDouyin,
		TargetURL:     "https://www.douyin.com/video/1",
		Mode:          domain.AnalysisCustom,
		CustomPrompts: []string{"Who is the audience?"},
		Videos:        1,
	}
}

func newTestSummarizer(t *testing.T, m *scriptedModels) *Summarizer {
	t.Helper()
	s, err := newSummarizer(slog.New(slog.NewTextHandler(io.Discard, nil)), m, testConfig())
	require.NoError(t, err)
	return s
}

func TestSummarizeReturnsText(t *testing.T) {
	t.Parallel()
	m := &scriptedModels{responses: []*genai.GenerateContentResponse{textResponse("  Clear summary.  ")}}

	got, err := newTestSummarizer(t, m).Summarize(context.Background(), videoInput())
	require.NoError(t, err)
	assert.Equal(t, "Clear summary.", got)

	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], "douyin video at https://www.douyin.com/video/1")
	assert.Contains(t, m.prompts[0], "- Who is the audience?")
}

func TestSummarizeAccountPrompt(t *testing.T) {
	t.Parallel()
	m := &scriptedModels{responses: []*genai.GenerateContentResponse{textResponse("ok")}}

	_, err := newTestSummarizer(t, m).Summarize(context.Background(), pipeline.SummaryInput{
		Kind:            domain.KindAccountAnalysis,
		Platform:        domain.PlatformBilibili,
		TargetURL:       "https://space.bilibili.com/42",
		Mode:            domain.DepthComprehensive,
		IncludeComments: true,
		Videos:          25,
	})
	require.NoError(t, err)
	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], "bilibili account at https://space.bilibili.com/42")
	assert.Contains(t, m.prompts[0], "25 most recent videos at comprehensive depth")
	assert.Contains(t, m.prompts[0], "audience comments")
}

func TestSummarizeRetriesTransientErrors(t *testing.T) {
	t.Parallel()
	m := &scriptedModels{
		errs:      []error{errors.New("503"), errors.New("503")},
		responses: []*genai.GenerateContentResponse{nil, nil, textResponse("third time")},
	}

	got, err := newTestSummarizer(t, m).Summarize(context.Background(), videoInput())
	require.NoError(t, err)
	assert.Equal(t, "third time", got)
	assert.Equal(t, 3, m.calls)
}

func TestSummarizeGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()
	m := &scriptedModels{errs: []error{errors.New("a"), errors.New("b"), errors.New("c"), errors.New("d")}}

	_, err := newTestSummarizer(t, m).Summarize(context.Background(), videoInput())
	assert.ErrorIs(t, err, ErrTransientFailure)
	assert.Equal(t, 3, m.calls)
}

func TestSummarizePermanentFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want error
	}{
		{"no candidates", &genai.GenerateContentResponse{}, ErrInvalidResponse},
		{"blocked", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}, ErrContentBlocked},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, ErrInvalidResponse},
		{"blank text", textResponse("   "), ErrInvalidResponse},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := &scriptedModels{responses: []*genai.GenerateContentResponse{tc.resp}}
			_, err := newTestSummarizer(t, m).Summarize(context.Background(), videoInput())
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, 1, m.calls, "permanent failures are not retried")
		})
	}
}

func TestSummarizeStopsOnCancellation(t *testing.T) {
	t.Parallel()
	m := &scriptedModels{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	s := newTestSummarizer(t, m)
	s.baseDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Summarize(ctx, videoInput())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, m.calls)
}

func TestNewSummarizerValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := NewSummarizer(context.Background(), slog.Default(), config.LLMConfig{ModelName: "m"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = newSummarizer(slog.Default(), &scriptedModels{}, config.LLMConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = newSummarizer(nil, &scriptedModels{}, testConfig())
	assert.Error(t, err)
}
