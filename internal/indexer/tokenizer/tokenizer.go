// Package tokenizer provides text tokenisation for statute search.
// It lower-cases input, splits on non-alphanumeric boundaries, removes
// German stop-words, and reduces each word with the Snowball German stemmer.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/german"
)

var stopWords = map[string]struct{}{
	"aber": {}, "als": {}, "am": {}, "an": {}, "auch": {}, "auf": {},
	"aus": {}, "bei": {}, "bis": {}, "da": {}, "das": {}, "dass": {},
	"dem": {}, "den": {}, "der": {}, "des": {}, "die": {}, "dies": {},
	"diese": {}, "dieser": {}, "du": {}, "durch": {}, "ein": {}, "eine": {},
	"einem": {}, "einen": {}, "einer": {}, "eines": {}, "er": {}, "es": {},
	"für": {}, "hat": {}, "ich": {}, "ihr": {}, "im": {}, "in": {},
	"ist": {}, "mit": {}, "nach": {}, "nicht": {}, "noch": {}, "oder": {},
	"sich": {}, "sie": {}, "sind": {}, "so": {}, "über": {}, "um": {},
	"und": {}, "uns": {}, "unter": {}, "vom": {}, "von": {}, "vor": {},
	"war": {}, "was": {}, "wenn": {}, "werden": {}, "wie": {}, "wird": {},
	"wir": {}, "zu": {}, "zum": {}, "zur": {}, "mein": {}, "meine": {},
	"mich": {}, "mir": {}, "kann": {}, "wurde": {}, "hatte": {}, "habe": {},
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into a slice of stemmed, lowercased Tokens with
// stop-words removed.
func Tokenize(text string) []Token {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words)/2)
	pos := 0
	for _, word := range words {
		if len([]rune(word)) < 2 && !isNumeric(word) {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		stemmed := stem(word)
		if stemmed == "" {
			continue
		}
		tokens = append(tokens, Token{
			Term:     stemmed,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// IsStopWord reports whether the lower-cased word is dropped by Tokenize.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// stem reduces a lower-cased word to its German Snowball stem. Purely numeric
// tokens such as section numbers are kept verbatim.
func stem(word string) string {
	if isNumeric(word) {
		return word
	}
	env := snowballstem.NewEnv(word)
	german.Stem(env)
	return env.Current()
}

func isNumeric(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
