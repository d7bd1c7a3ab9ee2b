package nlu

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var phoneRe = regexp.MustCompile(`\b\d{10}\b`)

var titleCaser = cases.Title(language.English)

// ExtractCustomerDetails pulls a customer name and phone number out of a
// finalize utterance. The name heuristic takes the first word after
// "my name is" or "i am"/"i'm"; the phone heuristic takes the first
// standalone 10-digit run. Either result may be empty.
func ExtractCustomerDetails(text string) (name, phone string) {
	textLow := strings.ToLower(text)

	if _, after, found := strings.Cut(textLow, "my name is"); found {
		name = firstWord(after)
	} else {
		normalized := strings.ReplaceAll(textLow, "i'm", "i am")
		if _, after, found := strings.Cut(normalized, "i am"); found {
			name = firstWord(after)
		}
	}
	if name != "" {
		name = titleCaser.String(name)
	}

	phone = phoneRe.FindString(text)
	return name, phone
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
