package security

import (
	"regexp"
)

// Sanitizer strips active content from HTML message bodies before they
// are stored, so a fetched inbox never hands script-bearing markup to a
// renderer.
type Sanitizer struct {
	strip   []*regexp.Regexp
	neuter  []*regexp.Regexp
	maxBody int
}

// DefaultMaxBodyBytes caps a single HTML body after sanitization.
const DefaultMaxBodyBytes = 1 << 20 // 1MB

// NewSanitizer creates a sanitizer with the default rule set.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		strip: []*regexp.Regexp{
			regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
			regexp.MustCompile(`(?i)<script[^>]*/?>`),
			regexp.MustCompile(`(?is)<iframe[^>]*>.*?</iframe>`),
			regexp.MustCompile(`(?i)<iframe[^>]*/?>`),
			regexp.MustCompile(`(?i)<object[^>]*>`),
			regexp.MustCompile(`(?i)<embed[^>]*>`),
		},
		neuter: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\son\w+\s*=\s*"[^"]*"`),
			regexp.MustCompile(`(?i)\son\w+\s*=\s*'[^']*'`),
			regexp.MustCompile(`(?i)\son\w+\s*=\s*[^\s>]+`),
			regexp.MustCompile(`(?i)javascript:`),
		},
		maxBody: DefaultMaxBodyBytes,
	}
}

// CleanHTML removes script and frame elements, inline event handlers
// and javascript: URLs, then truncates to the body cap. Text that was
// never HTML passes through unchanged apart from the cap.
func (s *Sanitizer) CleanHTML(body string) string {
	for _, re := range s.strip {
		body = re.ReplaceAllString(body, "")
	}
	for _, re := range s.neuter {
		body = re.ReplaceAllString(body, "")
	}
	if len(body) > s.maxBody {
		body = body[:s.maxBody]
	}
	return body
}
