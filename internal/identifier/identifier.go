// Package identifier parses and extracts the 24-character hex verification
// identifiers accepted by the upstream service.
package identifier

import (
	"errors"
	"regexp"
	"strings"
)

// Identifier is a canonical verification identifier: 24 lowercase hex characters.
type Identifier string

// ErrInvalid indicates the input contains no recognizable identifier.
var ErrInvalid = errors.New("no verification identifier found")

var (
	canonicalPattern = regexp.MustCompile(`^[0-9a-f]{24}$`)

	// Accepted shapes in priority order: id= query parameter, path segment,
	// bare hex run anywhere in the text.
	extractPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)[?&]id=([0-9a-fA-F]{24})(?:[^0-9a-fA-F]|$)`),
		regexp.MustCompile(`(?i)/([0-9a-fA-F]{24})(?:[^0-9a-fA-F]|$)`),
		regexp.MustCompile(`(?i)(?:^|[^0-9a-fA-F])([0-9a-fA-F]{24})(?:[^0-9a-fA-F]|$)`),
	}
)

func (id Identifier) String() string { return string(id) }

// Parse extracts a single identifier from raw input: a bare identifier, a
// URL carrying one as a query parameter or path segment, or any text with a
// 24-hex-character run. Matching is case-insensitive; the result is
// normalized to lowercase.
func Parse(input string) (Identifier, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrInvalid
	}
	lowered := strings.ToLower(trimmed)
	if canonicalPattern.MatchString(lowered) {
		return Identifier(lowered), nil
	}
	for _, pattern := range extractPatterns {
		if m := pattern.FindStringSubmatch(trimmed); m != nil {
			return Identifier(strings.ToLower(m[1])), nil
		}
	}
	return "", ErrInvalid
}

// ExtractAll scans free text for identifiers, splitting on whitespace and
// deduplicating while preserving first-seen order.
func ExtractAll(text string) []Identifier {
	var out []Identifier
	seen := map[Identifier]struct{}{}
	for _, field := range strings.Fields(text) {
		id, err := Parse(field)
		if err != nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
