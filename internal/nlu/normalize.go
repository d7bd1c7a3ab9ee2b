// Package nlu turns transcribed utterances into structured meaning: phonetic
// normalization, fuzzy menu matching, quantity extraction and rule-based
// intent classification.
//
// Everything in this package is deterministic. The classifier is an ordered
// rule cascade, the matcher is plain edit-distance scoring, and the
// correction table is fixed. Reordering rules or table entries changes
// behavior, so both are kept as explicit ordered slices.
package nlu

import (
	"regexp"
	"strings"
)

// NormalizeWord lowercases a word and strips every non-letter rune. ASCII
// digits and punctuation vanish, so "coffee," and "Coffee" normalize equal.
func NormalizeWord(w string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(w) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// correction rewrites one known mis-transcription. Patterns are word-boundary
// anchored and must not overlap each other, so application order between
// distinct keys does not matter; the slice still fixes one deterministic
// order.
type correction struct {
	re          *regexp.Regexp
	replacement string
}

var phoneticCorrections = buildCorrections([][2]string{
	{"button hand", "butter naan"},
	{"button nan", "butter naan"},
	{"better nan", "butter naan"},
	{"butter nan", "butter naan"},
	{"plane nan", "plain naan"},
	{"plain nan", "plain naan"},
	{"garlic nan", "garlic naan"},
	{"golub jamun", "gulab jamun"},
	{"gulab jaman", "gulab jamun"},
	{"ras gulla", "rasgulla"},
	{"better chicken", "butter chicken"},
	{"panel tikka", "paneer tikka"},
	{"paneer tika", "paneer tikka"},
	{"biriyani", "biryani"},
	{"dhal makhani", "dal makhani"},
	{"prize", "price"},
	{"prise", "price"},
	{"cool coffee", "cold coffee"},
	{"cole coffee", "cold coffee"},
	{"cold coffe", "cold coffee"},
	{"pull coffee", "cold coffee"},
	{"cold coffees", "cold coffee"},
	{"too cold", "two cold"},
	{"to cold", "two cold"},
	{"2-pull", "two cold"},
	{"wage option", "veg option"},
	{"wage options", "veg options"},
	{"wage dish", "veg dish"},
	{"wage food", "veg food"},
	{"wage items", "veg items"},
	{"what's age", "what's veg"},
	{"do you have wage", "do you have veg"},
	{"any wage", "any veg"},
	{"vegetable option", "vegetarian option"},
	{"vegetable options", "vegetarian options"},
	{"main curse", "main course"},
	{"be average", "beverage"},
	{"be averages", "beverages"},
	{"what is in", "what's in"},
	{"what sin", "what's in"},
	{"whats in", "what's in"},
	{"whats the", "what's in the"},
	{"what's the", "what's in the"},
})

func buildCorrections(table [][2]string) []correction {
	out := make([]correction, 0, len(table))
	for _, pair := range table {
		out = append(out, correction{
			re:          regexp.MustCompile(`\b` + regexp.QuoteMeta(pair[0]) + `\b`),
			replacement: pair[1],
		})
	}
	return out
}

// ApplyPhoneticCorrections lowercases text and rewrites known speech-to-text
// mishearings of menu and query terms ("button nan" becomes "butter naan",
// "prize" becomes "price"). Runs before any other processing stage.
func ApplyPhoneticCorrections(text string) string {
	out := strings.ToLower(text)
	for _, c := range phoneticCorrections {
		out = c.re.ReplaceAllString(out, c.replacement)
	}
	return out
}

// englishRatioThreshold is the minimum fraction of latin-letter or whitespace
// runes for an utterance to count as English.
const englishRatioThreshold = 0.7

var englishRune = regexp.MustCompile(`[a-zA-Z\s]`)

// IsEnglish reports whether text is primarily English. Non-English turns get
// a fixed "please speak English" reply instead of entering the cascade.
func IsEnglish(text string) bool {
	if text == "" {
		return false
	}
	matched := len(englishRune.FindAllString(text, -1))
	return float64(matched)/float64(len([]rune(text))) >= englishRatioThreshold
}
