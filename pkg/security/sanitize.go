package security

import (
	"strings"
	"unicode"
)

// SanitizeString trims input and drops null bytes and control characters
// other than newlines and tabs.
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return removeControlCharacters(input)
}

// SanitizeLine is SanitizeString for single-line fields: runs of whitespace,
// newlines included, collapse to one space.
func SanitizeLine(input string) string {
	return strings.Join(strings.Fields(SanitizeString(input)), " ")
}

func removeControlCharacters(input string) string {
	var result strings.Builder
	for _, r := range input {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
