package prompt

import (
	"strings"

	"selfiebot/pkg/domain"
)

var optionLabels = map[domain.Mode]map[string]string{
	domain.ModeRealism: {
		"a": "Glasses, jewelry, tattoo",
		"b": "Makeup, emotions",
		"c": "Hair, beard, mustache",
		"d": "Clothes",
		"e": "Background and objects",
		"f": "Own option",
	},
	domain.ModeStylize: {
		"a": "Anime/Cartoon/Comic",
		"b": "Painting: Watercolor, Oil, Pencil",
		"c": "Full Art Portrait",
		"d": "Fantasy/Sci-Fi Character",
		"e": "Change Age, Gender, Ethnicity",
		"f": "Own option",
	},
	domain.ModeScene: {
		"a": "Change facial expression",
		"b": "Add atmosphere",
		"c": "Create scene",
		"d": "Own option",
	},
}

// IsChoiceLetter reports whether text is a single detail letter a-f.
func IsChoiceLetter(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return len(t) == 1 && t[0] >= 'a' && t[0] <= 'f'
}

// OptionLabel names the detail option picked by letter, or "" when unknown.
func OptionLabel(mode domain.Mode, letter string) string {
	return optionLabels[mode][strings.ToLower(strings.TrimSpace(letter))]
}

// OwnOptionLetter is the letter that asks for a free-form description.
func OwnOptionLetter(mode domain.Mode) string {
	if mode == domain.ModeScene {
		return "d"
	}
	return "f"
}
