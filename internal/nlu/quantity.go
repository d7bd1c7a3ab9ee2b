package nlu

import (
	"regexp"
	"strconv"
	"strings"
)

// dishQuantityPatterns is a legacy set of literal "<digits> <dish>" patterns
// kept for backward compatibility with older request logs. Checked before
// any generic heuristic.
var dishQuantityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d+)\s+cold\s+coffee\b`),
	regexp.MustCompile(`\b(\d+)\s+garlic\s+naan\b`),
	regexp.MustCompile(`\b(\d+)\s+paneer\s+tikka\b`),
	regexp.MustCompile(`\b(\d+)\s+butter\s+chicken\b`),
	regexp.MustCompile(`\b(\d+)\s+spring\s+roll\b`),
	regexp.MustCompile(`\b(\d+)\s+dal\s+makhani\b`),
	regexp.MustCompile(`\b(\d+)\s+masala\s+tea\b`),
	regexp.MustCompile(`\b(\d+)\s+gulab\s+jamun\b`),
	regexp.MustCompile(`\banother\s+(\d+)\b`),
	regexp.MustCompile(`\bmore\s+(\d+)\b`),
}

// numberWord maps a spelled-out quantity to its value. Order matters: the
// first entry whose word is followed by a trailing phrase wins.
type numberWord struct {
	word string
	num  int
	re   *regexp.Regexp
}

var numberWords = buildNumberWords([]struct {
	word string
	num  int
}{
	{"one", 1}, {"two", 2}, {"three", 3}, {"four", 4}, {"five", 5},
	{"six", 6}, {"seven", 7}, {"eight", 8}, {"nine", 9}, {"ten", 10},
	{"eleven", 11}, {"twelve", 12}, {"thirteen", 13}, {"fourteen", 14}, {"fifteen", 15},
	{"sixteen", 16}, {"seventeen", 17}, {"eighteen", 18}, {"nineteen", 19}, {"twenty", 20},
	{"another", 1}, {"additional", 1}, {"extra", 1}, {"more", 1},
	// Misheard "two": only counted when a dish indicator follows closely,
	// see ambiguousTwo.
	{"too", 2}, {"to", 2},
})

func buildNumberWords(entries []struct {
	word string
	num  int
}) []numberWord {
	out := make([]numberWord, 0, len(entries))
	for _, e := range entries {
		out = append(out, numberWord{
			word: e.word,
			num:  e.num,
			// The word must be followed by a trailing phrase to count as a
			// quantity rather than a standalone answer.
			re: regexp.MustCompile(`\b` + e.word + `\s+[a-z\s]+\b`),
		})
	}
	return out
}

// multiWordDishes trigger last-digit disambiguation for utterances like
// "cold coffee 2, 3".
var multiWordDishes = []string{"cold coffee", "garlic naan", "paneer tikka", "gulab jamun"}

// dishIndicators are single words that signal the preceding or following
// token relates to a dish.
var dishIndicators = []string{
	"coffee", "naan", "tikka", "chicken", "roll", "dal",
	"tea", "paneer", "gulab", "jamun", "butter", "masala",
}

var (
	digitToken  = regexp.MustCompile(`\b\d+\b`)
	nonWordRune = regexp.MustCompile(`[^\w]`)
	ambiguous2  = regexp.MustCompile(`\b(?:too|to)\b`)
)

// ExtractQuantity returns the quantity expressed in text, or def when none
// is found.
func ExtractQuantity(text string, def int) int {
	if qty, ok := Quantity(text); ok {
		return qty
	}
	return def
}

// Quantity extracts an integer quantity from a phrase. Precedence, first
// match wins:
//
//  1. The literal dish-specific patterns.
//  2. A number word followed by a trailing phrase. "too"/"to" only count as
//     two when a dish indicator follows within four characters.
//  3. A standalone digit token: last digit when the text names a known
//     multi-word dish, else a digit following a dish indicator, else the
//     first digit found.
//  4. "another"/"more"/"additional"/"extra" alone, meaning one.
//
// ok is false when the text carries no quantity at all.
func Quantity(text string) (qty int, ok bool) {
	text = strings.ToLower(text)

	for _, re := range dishQuantityPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return atoi(m[1]), true
		}
	}

	for _, nw := range numberWords {
		if nw.word == "too" || nw.word == "to" {
			if n, found := ambiguousTwo(text); found {
				return n, true
			}
			continue
		}
		if nw.re.MatchString(text) {
			return nw.num, true
		}
	}

	tokens := strings.Fields(text)

	for _, dish := range multiWordDishes {
		if strings.Contains(text, dish) {
			if digits := digitToken.FindAllString(text, -1); len(digits) > 0 {
				return atoi(digits[len(digits)-1]), true
			}
			break
		}
	}

	for i, tok := range tokens {
		clean := nonWordRune.ReplaceAllString(tok, "")
		if clean == "" || !isDigits(clean) {
			continue
		}
		if i > 0 {
			prev := tokens[i-1]
			for _, ind := range dishIndicators {
				if strings.Contains(prev, ind) {
					return atoi(clean), true
				}
			}
		}
		return atoi(clean), true
	}

	for i, tok := range tokens {
		switch tok {
		case "another", "more", "additional", "extra":
			if i+1 < len(tokens) {
				next := nonWordRune.ReplaceAllString(tokens[i+1], "")
				if isDigits(next) {
					return atoi(next), true
				}
			}
			return 1, true
		}
	}

	return 0, false
}

// bareNumberWords are the spelled-out values BareQuantity accepts on their
// own. Deliberately excludes the "too"/"to"/"another" family: a correction
// phrase names its target number plainly.
var bareNumberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
}

// BareQuantity extracts a quantity from a direct correction phrase like
// "change cold coffee to three". Unlike [Quantity] it accepts a bare number
// word or digit with nothing after it: the first number word wins, otherwise
// the largest digit token (so trailing corrections beat any digits inside
// the dish mention), otherwise def.
func BareQuantity(text string, def int) int {
	tokens := strings.Fields(strings.ToLower(text))

	for _, tok := range tokens {
		if n, ok := bareNumberWords[nonWordRune.ReplaceAllString(tok, "")]; ok {
			return n
		}
	}

	best, found := 0, false
	for _, tok := range tokens {
		clean := nonWordRune.ReplaceAllString(tok, "")
		if !isDigits(clean) {
			continue
		}
		if n := atoi(clean); !found || n > best {
			best, found = n, true
		}
	}
	if found {
		return best
	}
	return def
}

// ambiguousTwo resolves the "too"/"to" mishearing: it is the number two only
// when a dish indicator starts within four characters after the token.
func ambiguousTwo(text string) (int, bool) {
	loc := ambiguous2.FindStringIndex(text)
	if loc == nil {
		return 0, false
	}
	rest := text[loc[1]:]
	if len(rest) > 0 && rest[0] == ' ' {
		rest = rest[1:]
	}
	for _, ind := range []string{"coffee", "naan", "tikka", "chicken"} {
		idx := strings.Index(rest, ind)
		if idx >= 0 && idx <= 4 {
			return 2, true
		}
	}
	return 0, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
