package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// JobKind names the closed set of analysis jobs the system knows how to run.
type JobKind string

// Supported job kinds.
const (
	KindSingleVideo     JobKind = "single_video"
	KindAccountAnalysis JobKind = "account_analysis"
)

// Analysis options for single video jobs.
const (
	AnalysisStandard = "standard"
	AnalysisDetailed = "detailed"
	AnalysisCustom   = "custom"
)

// Depth options for account jobs.
const (
	DepthBasic         = "basic"
	DepthStandard      = "standard"
	DepthComprehensive = "comprehensive"
)

// Limits applied to job parameters.
const (
	MaxCustomPrompts = 10
	MinAccountVideos = 1
	MaxAccountVideos = 100
	DefaultMaxVideos = 50
)

// JobSpec is the sealed set of job inputs. Only types in this package implement it;
// code that needs per-kind behaviour goes through a JobVisitor so that adding a kind
// forces every visitor to handle it.
type JobSpec interface {
	Kind() JobKind
	Validate() error
	Accept(v JobVisitor) error
	sealed()
}

// JobVisitor dispatches on the concrete job kind.
type JobVisitor interface {
	VisitSingleVideo(spec SingleVideoSpec) error
	VisitAccountAnalysis(spec AccountAnalysisSpec) error
}

// SingleVideoSpec asks for the analysis of one piece of content.
type SingleVideoSpec struct {
	VideoURL      string   `json:"video_url" validate:"required,url,max=2048"`
	Platform      Platform `json:"platform"`
	AnalysisType  string   `json:"analysis_type" validate:"required,oneof=standard detailed custom"`
	CustomPrompts []string `json:"custom_prompts,omitempty" validate:"max=10,dive,required,max=2000"`
}

// AccountAnalysisSpec asks for the analysis of an account's recent content.
type AccountAnalysisSpec struct {
	AccountURL      string   `json:"account_url" validate:"required,url,max=2048"`
	Platform        Platform `json:"platform"`
	AnalysisDepth   string   `json:"analysis_depth" validate:"required,oneof=basic standard comprehensive"`
	IncludeComments bool     `json:"include_comments"`
	MaxVideos       int      `json:"max_videos" validate:"min=1,max=100"`
}

var (
	_ JobSpec = SingleVideoSpec{}
	_ JobSpec = AccountAnalysisSpec{}
)

var validate = validator.New()

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// NewSingleVideoSpec builds a validated single video job. An empty analysisType
// defaults to "standard".
func NewSingleVideoSpec(videoURL, analysisType string, customPrompts []string) (SingleVideoSpec, error) {
	if analysisType == "" {
		analysisType = AnalysisStandard
	}
	spec := SingleVideoSpec{
		VideoURL:      strings.TrimSpace(videoURL),
		AnalysisType:  analysisType,
		CustomPrompts: customPrompts,
	}
	if err := spec.Validate(); err != nil {
		return SingleVideoSpec{}, err
	}
	spec.Platform, _, _ = ClassifyURL(spec.VideoURL)
	return spec, nil
}

// NewAccountAnalysisSpec builds a validated account job. An empty depth defaults to
// "standard"; a zero maxVideos defaults to DefaultMaxVideos.
func NewAccountAnalysisSpec(accountURL, depth string, includeComments bool, maxVideos int) (AccountAnalysisSpec, error) {
	if depth == "" {
		depth = DepthStandard
	}
	if maxVideos == 0 {
		maxVideos = DefaultMaxVideos
	}
	spec := AccountAnalysisSpec{
		AccountURL:      strings.TrimSpace(accountURL),
		AnalysisDepth:   depth,
		IncludeComments: includeComments,
		MaxVideos:       maxVideos,
	}
	if err := spec.Validate(); err != nil {
		return AccountAnalysisSpec{}, err
	}
	spec.Platform, _, _ = ClassifyURL(spec.AccountURL)
	return spec, nil
}

// Kind implements JobSpec.
func (SingleVideoSpec) Kind() JobKind { return KindSingleVideo }

// Accept implements JobSpec.
func (s SingleVideoSpec) Accept(v JobVisitor) error { return v.VisitSingleVideo(s) }

func (SingleVideoSpec) sealed() {}

// Validate checks field constraints, the URL shape and the custom prompt rule.
func (s SingleVideoSpec) Validate() error {
	if err := validateStruct(s); err != nil {
		return err
	}
	if _, err := classifyTarget("video_url", s.VideoURL, TargetVideo); err != nil {
		return err
	}
	switch {
	case s.AnalysisType == AnalysisCustom && len(s.CustomPrompts) == 0:
		return NewValidationError("custom_prompts", "is required when analysis_type is custom", nil)
	case s.AnalysisType != AnalysisCustom && len(s.CustomPrompts) > 0:
		return NewValidationError("custom_prompts", "is only allowed when analysis_type is custom", nil)
	}
	return nil
}

// Kind implements JobSpec.
func (AccountAnalysisSpec) Kind() JobKind { return KindAccountAnalysis }

// Accept implements JobSpec.
func (s AccountAnalysisSpec) Accept(v JobVisitor) error { return v.VisitAccountAnalysis(s) }

func (AccountAnalysisSpec) sealed() {}

// Validate checks field constraints and the URL shape.
func (s AccountAnalysisSpec) Validate() error {
	if err := validateStruct(s); err != nil {
		return err
	}
	if _, err := classifyTarget("account_url", s.AccountURL, TargetProfile); err != nil {
		return err
	}
	return nil
}

// Normalize validates spec and returns a copy with its platform classified
// from its URL. Specs that did not come from the New*Spec constructors pass
// through here before they are stored.
func Normalize(spec JobSpec) (JobSpec, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	n := &normalizer{}
	if err := spec.Accept(n); err != nil {
		return nil, err
	}
	return n.out, nil
}

type normalizer struct{ out JobSpec }

func (n *normalizer) VisitSingleVideo(s SingleVideoSpec) error {
	s.Platform, _, _ = ClassifyURL(s.VideoURL)
	n.out = s
	return nil
}

func (n *normalizer) VisitAccountAnalysis(s AccountAnalysisSpec) error {
	s.Platform, _, _ = ClassifyURL(s.AccountURL)
	n.out = s
	return nil
}

// MarshalJobSpec encodes a spec for storage. The kind is stored alongside it.
func MarshalJobSpec(spec JobSpec) (json.RawMessage, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal %s spec: %w", spec.Kind(), err)
	}
	return data, nil
}

// UnmarshalJobSpec decodes a stored spec of the given kind.
func UnmarshalJobSpec(kind JobKind, data []byte) (JobSpec, error) {
	switch kind {
	case KindSingleVideo:
		var s SingleVideoSpec
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("unmarshal %s spec: %w", kind, err)
		}
		return s, nil
	case KindAccountAnalysis:
		var s AccountAnalysisSpec
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("unmarshal %s spec: %w", kind, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobKind, kind)
	}
}

// validateStruct runs tag validation and converts the first failure into a
// ValidationError carrying the JSON field name.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return NewValidationError("", err.Error(), nil)
	}
	fe := verrs[0]
	return NewValidationError(fieldPath(fe), describeTag(fe), nil)
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		switch fe.Kind() {
		case reflect.Slice:
			return "must have at most " + fe.Param() + " entries"
		case reflect.String:
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
