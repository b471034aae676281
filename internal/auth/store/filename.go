package store

import (
	"fmt"
	"strings"
	"unicode"
)

// CredentialFileName returns the filename used to persist a provider's
// credential. When a label is available (e.g. an account email), it is
// appended after the provider to disambiguate multiple accounts.
func CredentialFileName(provider, label string) string {
	parts := make([]string, 0, 2)
	if p := normalizeForFilename(provider); p != "" {
		parts = append(parts, p)
	}
	if l := normalizeForFilename(label); l != "" {
		parts = append(parts, l)
	}
	if len(parts) == 0 {
		return "credential.json"
	}
	return fmt.Sprintf("%s.json", strings.Join(parts, "-"))
}

func normalizeForFilename(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	parts := strings.FieldsFunc(value, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(parts) == 0 {
		return ""
	}
	for i, part := range parts {
		parts[i] = strings.ToLower(part)
	}
	return strings.Join(parts, "-")
}
