// Package query turns raw user input into the normalised form the scorer
// consumes.
package query

import (
	"net/http"
	"strings"

	"github.com/gesetzesinfo/lawsearch/internal/indexer/tokenizer"
	apperrors "github.com/gesetzesinfo/lawsearch/pkg/errors"
)

// Normalized is a processed query. Terms are unique and keep the order of
// their first occurrence; a query of stop words only has no terms.
type Normalized struct {
	Raw   string
	Text  string
	Terms []string
}

// Normalize trims raw, folds whitespace runs to single spaces, lower-cases
// it and tokenises it. Blank input fails with ErrEmptyQuery.
func Normalize(raw string) (*Normalized, error) {
	text := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if text == "" {
		return nil, apperrors.New(apperrors.ErrEmptyQuery, http.StatusBadRequest, "query must not be empty")
	}

	tokens := tokenizer.Tokenize(text)
	terms := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if _, dup := seen[tok.Term]; dup {
			continue
		}
		seen[tok.Term] = struct{}{}
		terms = append(terms, tok.Term)
	}
	return &Normalized{Raw: raw, Text: text, Terms: terms}, nil
}
