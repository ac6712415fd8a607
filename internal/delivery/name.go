package delivery

import (
	"strings"
	"unicode"
)

const maxDownloadNameLength = 80

// SanitizeName makes s safe for a Content-Disposition filename: control
// characters are dropped and anything outside letters, digits and a few
// punctuation marks becomes '_'.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

// downloadName builds "<title>.<ext>", falling back to the artifact id.
func downloadName(title, id, ext string) string {
	name := strings.Trim(SanitizeName(title, maxDownloadNameLength), ". ")
	if name == "" {
		name = id
	}
	return name + ext
}
