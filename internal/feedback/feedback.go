// Package feedback records binary user judgements about ranked results. A
// rating is keyed by the (query id, result id) pair the search service
// issued; the registry remembers which pairs exist, the store keeps one
// rating per pair with last-write-wins semantics, and the tally read path is
// the input a future re-ranker would consume.
package feedback

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/gesetzesinfo/lawsearch/pkg/errors"
)

type Rating string

const (
	Helpful   Rating = "helpful"
	Unrelated Rating = "unrelated"
)

// ParseRating accepts the wire values "positive"/"negative" as well as the
// canonical names.
func ParseRating(s string) (Rating, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "helpful":
		return Helpful, nil
	case "negative", "unrelated":
		return Unrelated, nil
	default:
		return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"rating must be positive or negative, got %q", s)
	}
}

// Feedback is one stored rating.
type Feedback struct {
	QueryID     string    `json:"query_id"`
	ResultID    int       `json:"result_id"`
	ProvisionID int64     `json:"provision_id"`
	Rating      Rating    `json:"rating"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Tally counts ratings for one provision across all queries.
type Tally struct {
	ProvisionID int64 `json:"provision_id"`
	Helpful     int   `json:"helpful"`
	Unrelated   int   `json:"unrelated"`
}

func (t Tally) Total() int {
	return t.Helpful + t.Unrelated
}

func unknownReference(format string, args ...any) error {
	return apperrors.New(apperrors.ErrUnknownReference, http.StatusNotFound, fmt.Sprintf(format, args...))
}
