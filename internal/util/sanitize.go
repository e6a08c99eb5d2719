package util

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go-saas-auth/internal/model"
)

// SanitizeDisplayName strips control and invisible characters from a
// human-readable name and collapses runs of whitespace. The result must be
// 1..maxRunes runes long.
func SanitizeDisplayName(name string, maxRunes int) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: name contains null bytes", model.ErrInvalidInput)
	}

	builder := strings.Builder{}
	builder.Grow(len(name))

	for _, char := range name {
		if char == utf8.RuneError {
			return "", fmt.Errorf("%w: name is not valid UTF-8", model.ErrInvalidInput)
		}
		if unicode.IsSpace(char) {
			builder.WriteRune(' ')
			continue
		}
		if unicode.IsControl(char) || isInvisibleUnicode(char) {
			continue
		}

		builder.WriteRune(char)
	}

	cleaned := strings.Join(strings.Fields(builder.String()), " ")
	if cleaned == "" {
		return "", fmt.Errorf("%w: name cannot be empty", model.ErrInvalidInput)
	}

	if utf8.RuneCountInString(cleaned) > maxRunes {
		return "", fmt.Errorf("%w: name must be at most %d characters", model.ErrInvalidInput, maxRunes)
	}

	return cleaned, nil
}

// isInvisibleUnicode reports zero-width, bidi and other formatting
// characters that render as nothing.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u200C', // Zero-Width Non-Joiner
		'\u200D', // Zero-Width Joiner
		'\u2060', // Word Joiner
		'\uFEFF', // Zero-Width No-Break Space / BOM
		'\uFFF9', // Interlinear Annotation Anchor
		'\uFFFA', // Interlinear Annotation Separator
		'\uFFFB': // Interlinear Annotation Terminator
		return true
	}

	return unicode.Is(unicode.Cf, r)
}
