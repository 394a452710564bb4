package token

import (
	"errors"
	"regexp"
)

// Extractor pulls a CSRF token out of a landing page body.
type Extractor func(body string) (string, error)

// ErrNoToken indicates no known token pattern matched the page body.
var ErrNoToken = errors.New("no csrf token in page body")

// Patterns the service has embedded its token with, in the order they are
// tried: a window global, the meta tag, and inline script assignments.
var extractPatterns = []*regexp.Regexp{
	regexp.MustCompile(`window\.CSRF_TOKEN\s*=\s*["']([^"']+)["']`),
	regexp.MustCompile(`<meta\s+name=["']csrf-token["']\s+content=["']([^"']+)["']`),
	regexp.MustCompile(`csrfToken["']?\s*[:=]\s*["']([^"']+)["']`),
	regexp.MustCompile(`_csrf["']?\s*[:=]\s*["']([^"']+)["']`),
}

// ExtractFromHTML is the default Extractor.
func ExtractFromHTML(body string) (string, error) {
	for _, pattern := range extractPatterns {
		if m := pattern.FindStringSubmatch(body); m != nil && m[1] != "" {
			return m[1], nil
		}
	}
	return "", ErrNoToken
}
