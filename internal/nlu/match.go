package nlu

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/rnmehta/dinevox/internal/menu"
)

const (
	// DefaultMinWordSimilarity is the per-word similarity floor for a name
	// word to count as matched.
	DefaultMinWordSimilarity = 0.85

	// DefaultMinCoverage is the minimum fraction of name words that must
	// match for an item to be a candidate.
	DefaultMinCoverage = 0.5

	// longNameMinCoverage applies to item names longer than two words, to
	// suppress over-eager partial matches.
	longNameMinCoverage = 0.7

	// BestMatchThreshold is the acceptance floor for BestDishMatch.
	BestMatchThreshold = 0.65

	// AcceptScore is the stricter floor callers use before committing to a
	// match without asking the user.
	AcceptScore = 0.7
)

// Similarity scores two words in [0, 1] from their Levenshtein distance over
// the longer normalized length. Identical words score 1.0; an empty side
// scores 0.0. Symmetric in its arguments.
func Similarity(a, b string) float64 {
	a, b = NormalizeWord(a), NormalizeWord(b)
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	return 1.0 - float64(matchr.Levenshtein(a, b))/float64(longer)
}

// Match is one ranked candidate from the catalog.
type Match struct {
	Entry menu.Entry
	Score float64
}

// Matcher fuzzy-matches free text against the menu catalog.
type Matcher struct {
	repo menu.Repository
}

// NewMatcher returns a Matcher reading items from repo.
func NewMatcher(repo menu.Repository) *Matcher {
	return &Matcher{repo: repo}
}

// FindAllDishMatches returns every catalog item matching text, best first,
// using the default thresholds.
//
// For each item, each word of the item name is scored against every query
// word; a name word is matched when its best similarity reaches the word
// floor. Items survive when matched-word coverage reaches the coverage floor
// (0.7 for names longer than two words). The final score is
// coverage + 0.1*maxSimilarity, so full-coverage candidates separate by how
// exact their best word was. Equal scores keep catalog order.
func (m *Matcher) FindAllDishMatches(text string) []Match {
	return m.findMatches(text, DefaultMinWordSimilarity, DefaultMinCoverage)
}

func (m *Matcher) findMatches(text string, minWordSim, minCoverage float64) []Match {
	textWords := strings.Fields(strings.ToLower(text))
	for i, w := range textWords {
		textWords[i] = NormalizeWord(w)
	}

	var matches []Match
	for _, entry := range m.repo.Items() {
		nameWords := strings.Fields(entry.Item.Name)
		if len(nameWords) == 0 {
			continue
		}

		matched := make(map[string]struct{})
		maxSim := 0.0
		for _, nw := range nameWords {
			nw = NormalizeWord(nw)
			if nw == "" {
				continue
			}
			for _, tw := range textWords {
				if tw == "" {
					continue
				}
				sim := Similarity(tw, nw)
				if sim > maxSim {
					maxSim = sim
				}
				if sim >= minWordSim {
					matched[nw] = struct{}{}
				}
			}
		}
		if len(matched) == 0 {
			continue
		}

		coverage := float64(len(matched)) / float64(len(nameWords))
		if coverage < minCoverage {
			continue
		}
		if len(nameWords) > 2 && coverage < longNameMinCoverage {
			continue
		}

		matches = append(matches, Match{
			Entry: entry,
			Score: coverage + 0.1*maxSim,
		})
	}

	// Stable: catalog declaration order breaks score ties.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// BestDishMatch returns the single best candidate, or false when nothing
// reaches BestMatchThreshold.
func (m *Matcher) BestDishMatch(text string) (Match, bool) {
	matches := m.FindAllDishMatches(text)
	if len(matches) == 0 || matches[0].Score < BestMatchThreshold {
		return Match{}, false
	}
	return matches[0], true
}
