// Package index implements the in-memory inverted index used to look up the
// provisions containing a query term without scanning the whole corpus.
package index

import (
	"sort"
	"sync"

	"github.com/gesetzesinfo/lawsearch/internal/indexer/tokenizer"
)

type MemoryIndex struct {
	mu          sync.RWMutex
	index       map[string]map[int64]*Posting
	docCount    int
	totalTokens int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]map[int64]*Posting),
	}
}

// AddDocument tokenises title and body separately and merges the resulting
// postings into the index. Positions are counted across title then body.
func (m *MemoryIndex) AddDocument(docID int64, title string, body string) DocStats {
	titleTokens := tokenizer.Tokenize(title)
	bodyTokens := tokenizer.Tokenize(body)

	termData := make(map[string]*Posting)
	posting := func(term string) *Posting {
		p, exists := termData[term]
		if !exists {
			p = &Posting{
				DocID:     docID,
				Positions: make([]int, 0, 4),
			}
			termData[term] = p
		}
		return p
	}
	for _, token := range titleTokens {
		p := posting(token.Term)
		p.TitleFreq++
		p.Positions = append(p.Positions, token.Position)
	}
	offset := len(titleTokens)
	for _, token := range bodyTokens {
		p := posting(token.Term)
		p.BodyFreq++
		p.Positions = append(p.Positions, offset+token.Position)
	}

	stats := DocStats{
		DocID:  docID,
		DocLen: len(titleTokens) + len(bodyTokens),
		Terms:  make(map[string]Posting, len(termData)),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for term, p := range termData {
		if _, exists := m.index[term]; !exists {
			m.index[term] = make(map[int64]*Posting)
		}
		m.index[term][docID] = p
		stats.Terms[term] = *p
	}
	m.docCount++
	m.totalTokens += int64(stats.DocLen)
	return stats
}

// Search returns the postings for an already normalised term, ordered by
// document id.
func (m *MemoryIndex) Search(term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[term]
	if !exists {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		result = append(result, *posting)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

// DocFreq returns the number of documents containing term.
func (m *MemoryIndex) DocFreq(term string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.index[term])
}

// TermCount is the vocabulary size.
func (m *MemoryIndex) TermCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.index)
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docCount
}

func (m *MemoryIndex) AvgDocLength() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.docCount == 0 {
		return 0
	}
	return float64(m.totalTokens) / float64(m.docCount)
}
