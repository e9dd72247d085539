// Package corpus holds the fixed set of statute provisions the service
// searches, together with the inverted index and the corpus-wide statistics
// the scorer needs. A Store is built once at startup and never mutated, so it
// is safe for concurrent readers without locking.
package corpus

import (
	"cmp"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"iter"
	"net/http"
	"slices"

	"github.com/gesetzesinfo/lawsearch/internal/indexer/index"
	apperrors "github.com/gesetzesinfo/lawsearch/pkg/errors"
)

// Provision is one addressable unit of statute text, e.g. "§ 242 StGB".
type Provision struct {
	ID        int64  `json:"id" yaml:"id"`
	BookCode  string `json:"book_code" yaml:"book_code"`
	Title     string `json:"title" yaml:"title"`
	Text      string `json:"text" yaml:"text"`
	SourceURL string `json:"source_url" yaml:"source_url"`
}

// Store is the read-only corpus.
type Store struct {
	provisions []Provision
	docs       []index.DocStats
	byID       map[int64]int
	idx        *index.MemoryIndex
	version    string
}

// NewStore indexes provisions and returns a Store ordered by id. Empty input
// and duplicate ids fail with ErrCorpusLoad.
func NewStore(provisions []Provision) (*Store, error) {
	if len(provisions) == 0 {
		return nil, apperrors.New(apperrors.ErrCorpusLoad, http.StatusInternalServerError, "corpus is empty")
	}

	sorted := slices.Clone(provisions)
	slices.SortFunc(sorted, func(a, b Provision) int {
		return cmp.Compare(a.ID, b.ID)
	})

	s := &Store{
		provisions: sorted,
		docs:       make([]index.DocStats, len(sorted)),
		byID:       make(map[int64]int, len(sorted)),
		idx:        index.NewMemoryIndex(),
	}
	h := sha256.New()
	var idBuf [8]byte
	for i, p := range sorted {
		if i > 0 && sorted[i-1].ID == p.ID {
			return nil, apperrors.Newf(apperrors.ErrCorpusLoad, http.StatusInternalServerError,
				"duplicate provision id %d", p.ID)
		}
		s.byID[p.ID] = i
		s.docs[i] = s.idx.AddDocument(p.ID, p.Title, p.Text)

		binary.BigEndian.PutUint64(idBuf[:], uint64(p.ID))
		h.Write(idBuf[:])
		h.Write([]byte(p.Title))
		h.Write([]byte{0})
		h.Write([]byte(p.Text))
		h.Write([]byte{0})
	}
	s.version = hex.EncodeToString(h.Sum(nil))[:16]
	return s, nil
}

// Count is the number of provisions.
func (s *Store) Count() int {
	return len(s.provisions)
}

// All yields every provision in ascending id order. The sequence can be
// ranged over any number of times and always yields the same provisions.
func (s *Store) All() iter.Seq[Provision] {
	return func(yield func(Provision) bool) {
		for _, p := range s.provisions {
			if !yield(p) {
				return
			}
		}
	}
}

func (s *Store) Get(id int64) (Provision, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Provision{}, false
	}
	return s.provisions[i], true
}

// Document returns the indexed statistics of provision id.
func (s *Store) Document(id int64) (index.DocStats, bool) {
	i, ok := s.byID[id]
	if !ok {
		return index.DocStats{}, false
	}
	return s.docs[i], true
}

// Documents yields the indexed statistics of every provision in id order.
func (s *Store) Documents() iter.Seq[index.DocStats] {
	return func(yield func(index.DocStats) bool) {
		for _, d := range s.docs {
			if !yield(d) {
				return
			}
		}
	}
}

// Candidates returns the ids of provisions containing at least one of terms,
// ascending.
func (s *Store) Candidates(terms []string) []int64 {
	seen := make(map[int64]struct{})
	for _, term := range terms {
		for _, p := range s.idx.Search(term) {
			seen[p.DocID] = struct{}{}
		}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Store) TotalDocs() int {
	return s.idx.DocCount()
}

func (s *Store) AvgDocLength() float64 {
	return s.idx.AvgDocLength()
}

func (s *Store) DocFreq(term string) int {
	return s.idx.DocFreq(term)
}

// TermCount is the number of distinct indexed terms.
func (s *Store) TermCount() int {
	return s.idx.TermCount()
}

// Version fingerprints the corpus content. Cached results are namespaced by
// it so a reloaded corpus never serves stale rankings.
func (s *Store) Version() string {
	return s.version
}

func (s *Store) String() string {
	return fmt.Sprintf("corpus(%d provisions, %d terms, version %s)", s.Count(), s.TermCount(), s.version)
}
