package pipeline

import (
	"encoding/json"

	"github.com/phrazzld/owl-api/internal/domain"
)

// Report is the document stored as a completed task's result.
type Report struct {
	Results  any      `json:"results"`
	Metadata Metadata `json:"metadata"`
}

// Metadata describes how a report was produced.
type Metadata struct {
	ProcessingSeconds float64 `json:"processing_seconds"`
	AnalysisType      string  `json:"analysis_type,omitempty"`
	AnalysisDepth     string  `json:"analysis_depth,omitempty"`
	VideosAnalyzed    int     `json:"videos_analyzed"`
	Summarizer        string  `json:"summarizer"`
}

// VideoResult is the results section of a single video report.
type VideoResult struct {
	VideoURL        string          `json:"video_url"`
	Platform        domain.Platform `json:"platform"`
	AnalysisSummary string          `json:"analysis_summary"`
	KeyPoints       []string        `json:"key_points"`
	Sentiment       string          `json:"sentiment"`
	Topics          []string        `json:"topics"`
	CustomPrompts   []string        `json:"custom_prompts,omitempty"`
}

// AccountResult is the results section of an account report.
type AccountResult struct {
	AccountURL          string          `json:"account_url"`
	Platform            domain.Platform `json:"platform"`
	TotalVideos         int             `json:"total_videos"`
	AnalysisSummary     string          `json:"analysis_summary"`
	ContentThemes       []string        `json:"content_themes"`
	Engagement          Engagement      `json:"engagement_analysis"`
	ContentQualityScore float64         `json:"content_quality_score"`
	Recommendations     []string        `json:"recommendations"`
	CommentsIncluded    bool            `json:"comments_included"`
}

// Engagement holds averaged audience metrics.
type Engagement struct {
	AverageViews   int     `json:"average_views"`
	AverageLikes   int     `json:"average_likes"`
	EngagementRate float64 `json:"engagement_rate"`
}

func cannedVideoResult(s domain.SingleVideoSpec) *VideoResult {
	return &VideoResult{
		VideoURL:        s.VideoURL,
		Platform:        s.Platform,
		AnalysisSummary: "Sample analysis of the requested video.",
		KeyPoints:       []string{"Key point 1", "Key point 2", "Key point 3"},
		Sentiment:       "positive",
		Topics:          []string{"technology", "education", "entertainment"},
		CustomPrompts:   s.CustomPrompts,
	}
}

func cannedAccountResult(s domain.AccountAnalysisSpec, videos int) *AccountResult {
	return &AccountResult{
		AccountURL:      s.AccountURL,
		Platform:        s.Platform,
		TotalVideos:     videos,
		AnalysisSummary: "Sample analysis of the requested account.",
		ContentThemes:   []string{"education", "lifestyle", "tech explainers"},
		Engagement: Engagement{
			AverageViews:   15000,
			AverageLikes:   800,
			EngagementRate: 5.3,
		},
		ContentQualityScore: 8.5,
		Recommendations: []string{
			"Increase audience interaction",
			"Tune the publishing schedule",
			"Vary the content formats",
		},
		CommentsIncluded: s.IncludeComments,
	}
}

// StoredReport is a Report read back from storage with its results left encoded.
type StoredReport struct {
	Results  json.RawMessage `json:"results"`
	Metadata Metadata        `json:"metadata"`
}

// DecodeReport parses a stored result.
func DecodeReport(data []byte) (*StoredReport, error) {
	var r StoredReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
