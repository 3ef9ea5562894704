package prompt

import (
	"regexp"
	"strings"

	"selfiebot/pkg/domain"
)

const preserveFaceAppendix = " Keep the face unchanged: do not alter features, identity or shape."

var allowFaceChange = []string{
	"change face",
	"replace face",
	"swap face",
	"face swap",
	"заменить лицо",
	"сменить лицо",
	"изменить лицо",
	"смена лица",
	"другое лицо",
	"не сохранять лицо",
}

var keepFace = []string{
	"keep face",
	"keep the face",
	"сохрани лицо",
	"не меняй лицо",
}

// ApplyFacePolicy appends a face-preservation clause unless the text explicitly
// asks for a face change or already asks to keep the face.
func ApplyFacePolicy(instruction string) string {
	trimmed := strings.TrimSpace(instruction)
	lower := strings.ToLower(trimmed)
	for _, k := range allowFaceChange {
		if strings.Contains(lower, k) {
			return trimmed
		}
	}
	for _, k := range keepFace {
		if strings.Contains(lower, k) {
			return trimmed
		}
	}
	return trimmed + preserveFaceAppendix
}

var (
	printableRe   = regexp.MustCompile(`^[\p{L}\p{N}\p{P}\s]+$`)
	asciiLetterRe = regexp.MustCompile(`[A-Za-z]`)
)

// IsLatin is the English-text heuristic: only letters, digits, punctuation and
// spaces, with at least one ASCII letter.
func IsLatin(text string) bool {
	return printableRe.MatchString(text) && asciiLetterRe.MatchString(text)
}

type intentRule struct {
	re   *regexp.Regexp
	mode domain.Mode
}

// Evaluated in order; the first match wins.
var intentRules = []intentRule{
	{regexp.MustCompile(`(?i)scene|effect`), domain.ModeScene},
	{regexp.MustCompile(`(?i)styliz|anime|cartoon|painting|art`), domain.ModeStylize},
	{regexp.MustCompile(`(?i)edit|realism|glasses|makeup|hair|beard|mustache|clothes|background`), domain.ModeRealism},
}

// MapIntent maps free text to an edit mode using the keyword table.
func MapIntent(text string) (domain.Mode, bool) {
	for _, rule := range intentRules {
		if rule.re.MatchString(text) {
			return rule.mode, true
		}
	}
	return 0, false
}
