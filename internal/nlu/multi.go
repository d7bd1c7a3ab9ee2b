package nlu

import (
	"regexp"
	"strings"
)

// dishSeparators split compound add requests. Checked in order; the first
// separator present wins so "paneer tikka, naan and coffee" splits on the
// comma rather than twice.
var dishSeparators = []string{
	" and ",
	",",
	" with ",
	" plus ",
	" along with ",
	" also ",
}

var smallQuantityTokens = map[string]struct{}{
	"one": {}, "two": {}, "three": {}, "four": {}, "five": {},
	"six": {}, "seven": {}, "eight": {}, "nine": {}, "ten": {},
}

func isQuantityToken(tok string) bool {
	if _, ok := smallQuantityTokens[tok]; ok {
		return true
	}
	return isDigits(tok)
}

// DetectMultipleDishes splits an utterance into per-dish phrases using the
// common separators, falling back to quantity-word boundaries for runs like
// "two coffee three naan". A text with no recognizable split comes back as
// a single phrase.
func DetectMultipleDishes(text string) []string {
	textLow := strings.ToLower(text)

	for _, sep := range dishSeparators {
		if !strings.Contains(textLow, sep) {
			continue
		}
		var dishes []string
		for _, part := range strings.Split(textLow, sep) {
			if p := strings.TrimSpace(part); p != "" {
				dishes = append(dishes, p)
			}
		}
		if len(dishes) > 0 {
			return dishes
		}
		break
	}

	if strings.Contains(textLow, "one") || strings.Contains(textLow, "two") ||
		strings.Contains(textLow, "three") {
		// Each quantity token opens a new phrase; words before the first
		// quantity ("i want ...") are dropped.
		var dishes []string
		var cur []string
		started := false
		for _, tok := range strings.Fields(textLow) {
			if isQuantityToken(tok) {
				if started && len(cur) > 0 {
					dishes = append(dishes, strings.Join(cur, " "))
				}
				cur = nil
				started = true
				continue
			}
			if started {
				cur = append(cur, tok)
			}
		}
		if started && len(cur) > 0 {
			dishes = append(dishes, strings.Join(cur, " "))
		}
		if len(dishes) > 0 {
			return dishes
		}
	}

	return []string{textLow}
}

// quantityPrefixRe strips a leading quantity word so "two cold coffee"
// can be re-matched as "cold coffee".
var quantityPrefixRe = regexp.MustCompile(`\b(?:one|two|three|four|five|six|seven|eight|nine|ten|\d+)\s+`)

// StripQuantityWords removes quantity words from a dish phrase. Used as a
// retry when the raw phrase found no catalog match.
func StripQuantityWords(phrase string) string {
	return strings.TrimSpace(quantityPrefixRe.ReplaceAllString(phrase, ""))
}
