package download

import (
	"slices"
	"strings"
)

// inferLanguages extracts candidate 2-letter language codes from identifiers
// such as model ids, repo names, and URLs. A code counts only when it forms a
// whole segment bounded by start, end, hyphen, or underscore ("voice-de-v2"
// yields "de", "base" yields nothing). When nothing matches the result
// defaults to English.
func inferLanguages(candidates ...string) (string, []string) {
	var langs []string
	for _, candidate := range candidates {
		segments := strings.FieldsFunc(strings.ToLower(candidate), func(r rune) bool {
			return r == '-' || r == '_'
		})
		for _, seg := range segments {
			if !isLanguageCode(seg) {
				continue
			}
			if !slices.Contains(langs, seg) {
				langs = append(langs, seg)
			}
		}
	}
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	return langs[0], langs
}

func isLanguageCode(seg string) bool {
	if len(seg) != 2 {
		return false
	}
	for _, r := range seg {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
