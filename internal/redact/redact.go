// Package redact strips credentials, connection strings, file paths and other
// sensitive fragments from error text before it reaches logs or clients.
package redact

import (
	"log/slog"
	"regexp"
)

type rule struct {
	re          *regexp.Regexp
	placeholder string
}

// Rules are applied in order. Stack dumps, connection strings and tokens go first
// so that the broader path rule does not split them.
var rules = []rule{
	{
		regexp.MustCompile(`goroutine \d+ \[[^\]]*\]:[\s\S]*`),
		"[REDACTED_STACK]",
	},
	{
		regexp.MustCompile(`(?i)(postgres(?:ql)?|mysql|mongodb|redis|amqp)://[^\s]+`),
		"[REDACTED_DSN]",
	},
	{
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.~+/=]+`),
		"Bearer [REDACTED_TOKEN]",
	},
	{
		regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`),
		"[REDACTED_JWT]",
	},
	{
		// Google API keys, as used for the Gemini summarizer.
		regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
		"[REDACTED_KEY]",
	},
	{
		regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password|passwd)(\s*[=:]\s*)['"]?[^\s'"&,]{4,}`),
		"${1}=[REDACTED]",
	},
	{
		regexp.MustCompile(`(?i)(SELECT|INSERT|UPDATE|DELETE)\s[^;]*?\b(FROM|INTO|SET)\b[^;]*`),
		"[REDACTED_SQL]",
	},
	{
		regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		"[REDACTED_EMAIL]",
	},
	{
		regexp.MustCompile(`(^|[\s"'(=])(?:/[\w.-]+){2,}`),
		"${1}[REDACTED_PATH]",
	},
}

// String redacts sensitive information from s.
func String(s string) string {
	if s == "" {
		return s
	}
	for _, r := range rules {
		s = r.re.ReplaceAllString(s, r.placeholder)
	}
	return s
}

// Error redacts the text of err. A nil error yields "".
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// Attr returns a slog attribute carrying the redacted error under the "error" key.
func Attr(err error) slog.Attr {
	return slog.String("error", Error(err))
}
