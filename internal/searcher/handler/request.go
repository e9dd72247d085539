package handler

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/gesetzesinfo/lawsearch/internal/feedback"
	apperrors "github.com/gesetzesinfo/lawsearch/pkg/errors"
)

// Limits bound the raw query accepted at the boundary. Zero disables a bound.
type Limits struct {
	MinQueryLength int
	MaxQueryLength int
}

type SearchRequest struct {
	Query string
}

// ParseSearchRequest reads q from the query string. Blank input fails with
// ErrEmptyQuery; input outside the length limits fails with ErrInvalidQuery.
func ParseSearchRequest(r *http.Request, limits Limits) (SearchRequest, error) {
	raw := r.URL.Query().Get("q")
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SearchRequest{}, apperrors.New(apperrors.ErrEmptyQuery, http.StatusBadRequest,
			"query parameter 'q' is required")
	}
	n := utf8.RuneCountInString(trimmed)
	if limits.MinQueryLength > 0 && n < limits.MinQueryLength {
		return SearchRequest{}, apperrors.Newf(apperrors.ErrInvalidQuery, http.StatusBadRequest,
			"query must be at least %d characters", limits.MinQueryLength)
	}
	if limits.MaxQueryLength > 0 && n > limits.MaxQueryLength {
		return SearchRequest{}, apperrors.Newf(apperrors.ErrInvalidQuery, http.StatusBadRequest,
			"query must be at most %d characters", limits.MaxQueryLength)
	}
	return SearchRequest{Query: raw}, nil
}

type RateRequest struct {
	ResultID int
	QueryID  string
	Rating   feedback.Rating
}

// ParseRateRequest reads id, qid and r. A missing parameter or rating is
// invalid input. An id or qid that could never have been issued by search
// is an unknown reference, like a stale one.
func ParseRateRequest(r *http.Request) (RateRequest, error) {
	params := r.URL.Query()

	idParam := params.Get("id")
	if idParam == "" {
		return RateRequest{}, invalid("query parameter 'id' is required")
	}
	resultID, err := strconv.Atoi(idParam)
	if err != nil || resultID < 1 {
		return RateRequest{}, apperrors.Newf(apperrors.ErrUnknownReference, http.StatusNotFound,
			"result %q does not exist", idParam)
	}

	queryID := params.Get("qid")
	if queryID == "" {
		return RateRequest{}, invalid("query parameter 'qid' is required")
	}
	if _, err := uuid.Parse(queryID); err != nil {
		return RateRequest{}, apperrors.Newf(apperrors.ErrUnknownReference, http.StatusNotFound,
			"query %q was not issued", queryID)
	}

	ratingParam := params.Get("r")
	if ratingParam == "" {
		return RateRequest{}, invalid("query parameter 'r' is required")
	}
	rating, err := feedback.ParseRating(ratingParam)
	if err != nil {
		return RateRequest{}, err
	}

	return RateRequest{ResultID: resultID, QueryID: queryID, Rating: rating}, nil
}

func invalid(message string) error {
	return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, message)
}
