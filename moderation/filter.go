package moderation

import (
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// Filter masks blocked words in message content.
// Matching ignores case, punctuation, spacing and common character substitutions,
// so "B.4.d" matches "bad". The masked span covers the original characters.
type Filter struct {
	machine *goahocorasick.Machine
	mask    rune
}

// NewFilter builds the automaton once. Words that normalize to nothing are skipped,
// and an empty word list gives a filter that returns content untouched.
func NewFilter(words []string, mask rune) (*Filter, error) {
	patterns := lo.FilterMap(words, func(word string, _ int) ([]rune, bool) {
		normalized, _ := normalize(word)
		return normalized, len(normalized) > 0
	})
	if len(patterns) == 0 {
		return &Filter{mask: mask}, nil
	}
	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Filter{machine: machine, mask: mask}, nil
}

// ParseWords splits a comma separated list.
func ParseWords(raw string) []string {
	return lo.Compact(lo.Map(strings.Split(raw, ","), func(word string, _ int) string {
		return strings.TrimSpace(word)
	}))
}

// Mask returns the content with every match replaced, and the matched words in order.
func (f *Filter) Mask(content string) (string, []string) {
	if f == nil || f.machine == nil {
		return content, nil
	}
	normalized, positions := normalize(content)
	if len(normalized) == 0 {
		return content, nil
	}
	hits := f.machine.MultiPatternSearch(normalized, false)
	if len(hits) == 0 {
		return content, nil
	}

	runes := []rune(content)
	var found []string
	for _, hit := range hits {
		end := hit.Pos + len(hit.Word)
		if hit.Pos < 0 || end > len(positions) {
			continue
		}
		for i := positions[hit.Pos]; i <= positions[end-1]; i++ {
			runes[i] = f.mask
		}
		found = append(found, string(hit.Word))
	}
	return string(runes), found
}

// normalize drops noise runes and lowers the rest.
// positions[i] is the index in the input of normalized rune i.
func normalize(input string) ([]rune, []int) {
	runes := []rune(input)
	normalized := make([]rune, 0, len(runes))
	positions := make([]int, 0, len(runes))
	for i, r := range runes {
		r = unleet(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		normalized = append(normalized, unicode.ToLower(r))
		positions = append(positions, i)
	}
	return normalized, positions
}

func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	}
	return r
}
