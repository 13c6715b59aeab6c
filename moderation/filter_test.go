package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilter_Mask(t *testing.T) {
	req := require.New(t)
	filter, err := NewFilter([]string{"badger", "snake"}, '*')
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{"plain word", "The badger is here", "The ****** is here", []string{"badger"}},
		{"repeated", "badger badger", "****** ******", []string{"badger", "badger"}},
		{"noise and substitutions", "Look at B.4.d.g.€r now", "Look at ********** now", []string{"badger"}},
		{"uppercase with dashes", "S-N-A-K-E", "*********", []string{"snake"}},
		{"accents untouched", "Un été avec un badger", "Un été avec un ******", []string{"badger"}},
		{"trailing punctuation kept", "I love badger.", "I love ******.", []string{"badger"}},
		{"nothing to mask", "hello there", "hello there", nil},
		{"empty", "", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, words := filter.Mask(tt.input)
			require.Equal(t, tt.expected, content)
			require.Equal(t, tt.words, words)
		})
	}
}

func TestFilter_Skips_Empty_Patterns(t *testing.T) {
	req := require.New(t)

	// Given a word list where some entries are only noise
	filter, err := NewFilter([]string{"...", "", "badger"}, '#')
	req.NoError(err)

	// Then only the real word is masked
	content, words := filter.Mask("the badger...")
	req.Equal("the ######...", content)
	req.Equal([]string{"badger"}, words)
}

func TestFilter_Without_Words_Is_Identity(t *testing.T) {
	req := require.New(t)
	filter, err := NewFilter(ParseWords(" , "), '*')
	req.NoError(err)

	content, words := filter.Mask("anything goes")
	req.Equal("anything goes", content)
	req.Nil(words)

	var nilFilter *Filter
	content, _ = nilFilter.Mask("still fine")
	req.Equal("still fine", content)
}

func TestParseWords(t *testing.T) {
	require.Equal(t, []string{"a", "b c"}, ParseWords(" a, ,b c ,"))
}
