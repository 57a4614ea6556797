package domain

import (
	"regexp"
	"strings"
)

// Platform identifies the content platform a target URL belongs to.
type Platform string

// Supported platforms.
const (
	PlatformDouyin      Platform = "douyin"
	PlatformXiaohongshu Platform = "xiaohongshu"
	PlatformBilibili    Platform = "bilibili"
	PlatformTikTok      Platform = "tiktok"
)

// TargetType says whether a URL points at a single piece of content or at an account.
type TargetType string

// Target types.
const (
	TargetVideo   TargetType = "video"
	TargetProfile TargetType = "profile"
)

type urlPattern struct {
	platform Platform
	target   TargetType
	re       *regexp.Regexp
}

var urlPatterns = []urlPattern{
	{PlatformDouyin, TargetVideo, regexp.MustCompile(`^https?://(www\.)?douyin\.com/video/\d+`)},
	{PlatformDouyin, TargetVideo, regexp.MustCompile(`^https?://(www\.)?iesdouyin\.com/share/video/\d+`)},
	{PlatformDouyin, TargetVideo, regexp.MustCompile(`^https?://v\.douyin\.com/[A-Za-z0-9]+`)},
	{PlatformDouyin, TargetProfile, regexp.MustCompile(`^https?://(www\.)?douyin\.com/user/[A-Za-z0-9_-]+`)},

	{PlatformXiaohongshu, TargetVideo, regexp.MustCompile(`^https?://(www\.)?xiaohongshu\.com/(explore|discovery/item)/[A-Za-z0-9]+`)},
	{PlatformXiaohongshu, TargetVideo, regexp.MustCompile(`^https?://xhslink\.com/[A-Za-z0-9]+`)},
	{PlatformXiaohongshu, TargetProfile, regexp.MustCompile(`^https?://(www\.)?xiaohongshu\.com/user/profile/[A-Za-z0-9]+`)},

	{PlatformBilibili, TargetVideo, regexp.MustCompile(`^https?://(www\.|m\.)?bilibili\.com/video/[A-Za-z0-9]+`)},
	{PlatformBilibili, TargetProfile, regexp.MustCompile(`^https?://space\.bilibili\.com/\d+`)},
	{PlatformBilibili, TargetProfile, regexp.MustCompile(`^https?://(www\.)?bilibili\.com/space/\d+`)},

	{PlatformTikTok, TargetVideo, regexp.MustCompile(`^https?://(www\.)?tiktok\.com/@[A-Za-z0-9_.]+/video/\d+`)},
	{PlatformTikTok, TargetVideo, regexp.MustCompile(`^https?://vm\.tiktok\.com/[A-Za-z0-9]+`)},
	{PlatformTikTok, TargetProfile, regexp.MustCompile(`^https?://(www\.)?tiktok\.com/@[A-Za-z0-9_.]+/?(\?.*)?$`)},
}

// ClassifyURL detects the platform and target type of rawURL.
// It returns ErrUnsupportedPlatform when no known pattern matches.
func ClassifyURL(rawURL string) (Platform, TargetType, error) {
	u := strings.TrimSpace(rawURL)
	for _, p := range urlPatterns {
		if p.re.MatchString(u) {
			return p.platform, p.target, nil
		}
	}
	return "", "", ErrUnsupportedPlatform
}

// classifyTarget validates rawURL against the expected target type and returns the
// detected platform.
func classifyTarget(field, rawURL string, want TargetType) (Platform, error) {
	platform, target, err := ClassifyURL(rawURL)
	if err != nil {
		return "", NewValidationError(field, "is not a supported platform URL", err)
	}
	if target != want {
		return "", NewValidationError(field, "must be a "+string(want)+" link", ErrInvalidURL)
	}
	return platform, nil
}
