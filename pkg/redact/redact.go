package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	apiKeyRe = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{8,}`)
	bearerRe = regexp.MustCompile(`(?i)\b(bearer|token)\s+[A-Za-z0-9._\-]{8,}`)
	queryRe  = regexp.MustCompile(`(?i)([?&](?:api_key|apikey|key|token)=)[^&\s]+`)
	emailRe  = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
)

// SetEnabled toggles redaction.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text masks API keys, bearer tokens, credential query parameters and
// emails when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := apiKeyRe.ReplaceAllString(in, "[REDACTED_KEY]")
	out = bearerRe.ReplaceAllString(out, "$1 [REDACTED_TOKEN]")
	out = queryRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = emailRe.ReplaceAllString(out, "[REDACTED_EMAIL]")
	return out
}

// Secret renders a credential for display, keeping only a short prefix.
// It ignores the enabled flag: credentials are never printed in full.
func Secret(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "***"
	}
	return s[:3] + "***"
}
