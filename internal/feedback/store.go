package feedback

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"strconv"
	"sync"

	"github.com/gesetzesinfo/lawsearch/pkg/postgres"
)

// Store persists one rating per (query id, result id).
type Store interface {
	Upsert(ctx context.Context, fb Feedback) error
	Get(ctx context.Context, queryID string, resultID int) (Feedback, bool, error)
	ListByQuery(ctx context.Context, queryID string) ([]Feedback, error)
	Tally(ctx context.Context, provisionID int64) (Tally, error)
}

const stripeCount = 32

type pairKey struct {
	queryID  string
	resultID int
}

type stripe struct {
	mu      sync.Mutex
	entries map[pairKey]Feedback
}

// MemoryStore spreads pairs over lock stripes: writes to different pairs
// rarely contend, writes to the same pair are serialised.
type MemoryStore struct {
	stripes [stripeCount]stripe
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.stripes {
		s.stripes[i].entries = make(map[pairKey]Feedback)
	}
	return s
}

func (s *MemoryStore) stripeFor(k pairKey) *stripe {
	h := fnv.New32a()
	h.Write([]byte(k.queryID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(k.resultID)))
	return &s.stripes[h.Sum32()%stripeCount]
}

func (s *MemoryStore) Upsert(_ context.Context, fb Feedback) error {
	k := pairKey{fb.QueryID, fb.ResultID}
	st := s.stripeFor(k)
	st.mu.Lock()
	st.entries[k] = fb
	st.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, queryID string, resultID int) (Feedback, bool, error) {
	k := pairKey{queryID, resultID}
	st := s.stripeFor(k)
	st.mu.Lock()
	fb, ok := st.entries[k]
	st.mu.Unlock()
	return fb, ok, nil
}

func (s *MemoryStore) ListByQuery(_ context.Context, queryID string) ([]Feedback, error) {
	var out []Feedback
	s.each(func(fb Feedback) {
		if fb.QueryID == queryID {
			out = append(out, fb)
		}
	})
	slices.SortFunc(out, func(a, b Feedback) int { return cmp.Compare(a.ResultID, b.ResultID) })
	return out, nil
}

func (s *MemoryStore) Tally(_ context.Context, provisionID int64) (Tally, error) {
	t := Tally{ProvisionID: provisionID}
	s.each(func(fb Feedback) {
		if fb.ProvisionID != provisionID {
			return
		}
		switch fb.Rating {
		case Helpful:
			t.Helpful++
		case Unrelated:
			t.Unrelated++
		}
	})
	return t, nil
}

// Len is the number of stored ratings.
func (s *MemoryStore) Len() int {
	n := 0
	s.each(func(Feedback) { n++ })
	return n
}

func (s *MemoryStore) each(fn func(Feedback)) {
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.Lock()
		for _, fb := range st.entries {
			fn(fb)
		}
		st.mu.Unlock()
	}
}

// PostgresStore keeps ratings in the feedback table. The primary key on
// (query_id, result_id) makes the upsert atomic per pair.
type PostgresStore struct {
	db *postgres.Client
}

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, fb Feedback) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO feedback (query_id, result_id, provision_id, rating, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (query_id, result_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			recorded_at = EXCLUDED.recorded_at`,
		fb.QueryID, fb.ResultID, fb.ProvisionID, string(fb.Rating), fb.RecordedAt)
	if err != nil {
		return fmt.Errorf("upserting feedback %s/%d: %w", fb.QueryID, fb.ResultID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, queryID string, resultID int) (Feedback, bool, error) {
	fb := Feedback{QueryID: queryID, ResultID: resultID}
	var rating string
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT provision_id, rating, recorded_at FROM feedback WHERE query_id = $1 AND result_id = $2`,
		queryID, resultID).Scan(&fb.ProvisionID, &rating, &fb.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Feedback{}, false, nil
	}
	if err != nil {
		return Feedback{}, false, fmt.Errorf("loading feedback %s/%d: %w", queryID, resultID, err)
	}
	fb.Rating = Rating(rating)
	return fb, true, nil
}

func (s *PostgresStore) ListByQuery(ctx context.Context, queryID string) ([]Feedback, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT result_id, provision_id, rating, recorded_at FROM feedback
		WHERE query_id = $1 ORDER BY result_id`, queryID)
	if err != nil {
		return nil, fmt.Errorf("listing feedback for %s: %w", queryID, err)
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		fb := Feedback{QueryID: queryID}
		var rating string
		if err := rows.Scan(&fb.ResultID, &fb.ProvisionID, &rating, &fb.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning feedback row: %w", err)
		}
		fb.Rating = Rating(rating)
		out = append(out, fb)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Tally(ctx context.Context, provisionID int64) (Tally, error) {
	t := Tally{ProvisionID: provisionID}
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE rating = 'helpful'),
			COUNT(*) FILTER (WHERE rating = 'unrelated')
		FROM feedback WHERE provision_id = $1`, provisionID).Scan(&t.Helpful, &t.Unrelated)
	if err != nil {
		return Tally{}, fmt.Errorf("tallying feedback for provision %d: %w", provisionID, err)
	}
	return t, nil
}
