package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gesetzesinfo/lawsearch/internal/indexer/tokenizer"
	apperrors "github.com/gesetzesinfo/lawsearch/pkg/errors"
)

func sample() []Provision {
	return []Provision{
		{ID: 3, BookCode: "StGB", Title: "§ 242 Diebstahl", Text: "Wer eine fremde bewegliche Sache wegnimmt, wird bestraft."},
		{ID: 1, BookCode: "StGB", Title: "§ 211 Mord", Text: "Der Mörder wird mit lebenslanger Freiheitsstrafe bestraft."},
		{ID: 2, BookCode: "StGB", Title: "§ 212 Totschlag", Text: "Wer einen Menschen tötet, ohne Mörder zu sein, wird bestraft."},
	}
}

func stemOf(t *testing.T, word string) string {
	t.Helper()
	tokens := tokenizer.Tokenize(word)
	require.Len(t, tokens, 1)
	return tokens[0].Term
}

func TestNewStore_OrdersByID(t *testing.T) {
	s, err := NewStore(sample())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Count())

	var ids []int64
	for p := range s.All() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestStore_AllIsRestartable(t *testing.T) {
	s, err := NewStore(sample())
	require.NoError(t, err)

	count := func() int {
		n := 0
		for range s.All() {
			n++
		}
		return n
	}
	assert.Equal(t, s.Count(), count())
	assert.Equal(t, s.Count(), count())

	for range s.All() {
		break
	}
	assert.Equal(t, s.Count(), count())
}

func TestNewStore_RejectsEmptyAndDuplicates(t *testing.T) {
	_, err := NewStore(nil)
	assert.ErrorIs(t, err, apperrors.ErrCorpusLoad)

	dup := append(sample(), Provision{ID: 2, Title: "Doppelt", Text: "Doppelter Eintrag"})
	_, err = NewStore(dup)
	assert.ErrorIs(t, err, apperrors.ErrCorpusLoad)
}

func TestStore_Get(t *testing.T) {
	s, err := NewStore(sample())
	require.NoError(t, err)

	p, ok := s.Get(3)
	require.True(t, ok)
	assert.Equal(t, "§ 242 Diebstahl", p.Title)

	_, ok = s.Get(99)
	assert.False(t, ok)
}

func TestStore_CandidatesAndStatistics(t *testing.T) {
	s, err := NewStore(sample())
	require.NoError(t, err)

	assert.Equal(t, 3, s.TotalDocs())
	assert.Greater(t, s.AvgDocLength(), 0.0)
	assert.Greater(t, s.TermCount(), 0)

	diebstahl := stemOf(t, "Diebstahl")
	assert.Equal(t, 1, s.DocFreq(diebstahl))
	assert.Equal(t, []int64{3}, s.Candidates([]string{diebstahl}))

	bestraft := stemOf(t, "bestraft")
	assert.Equal(t, []int64{1, 2, 3}, s.Candidates([]string{bestraft, diebstahl}))
	assert.Empty(t, s.Candidates([]string{"zzz"}))

	doc, ok := s.Document(3)
	require.True(t, ok)
	assert.Equal(t, 1, doc.Terms[diebstahl].TitleFreq)

	var docs int
	for range s.Documents() {
		docs++
	}
	assert.Equal(t, 3, docs)
}

func TestStore_VersionTracksContent(t *testing.T) {
	a, err := NewStore(sample())
	require.NoError(t, err)
	b, err := NewStore(sample())
	require.NoError(t, err)
	assert.Equal(t, a.Version(), b.Version())

	changed := sample()
	changed[0].Text = "Geänderter Text"
	c, err := NewStore(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a.Version(), c.Version())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "laws.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
provisions:
  - id: 1
    book_code: StGB
    title: "§ 211 Mord"
    text: "Der Mörder wird bestraft."
    source_url: https://openlegaldata.io/laws/1/
`), 0o600))
	got, err := LoadFile(yamlPath)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "StGB", got[0].BookCode)
	assert.Equal(t, "https://openlegaldata.io/laws/1/", got[0].SourceURL)

	jsonPath := filepath.Join(dir, "laws.json")
	require.NoError(t, os.WriteFile(jsonPath,
		[]byte(`{"provisions":[{"id":2,"title":"§ 212 Totschlag","text":"Wer einen Menschen tötet."}]}`), 0o600))
	got, err = LoadFile(jsonPath)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestLoadFile_Failures(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, apperrors.ErrCorpusLoad)

	txt := filepath.Join(dir, "laws.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o600))
	_, err = LoadFile(txt)
	assert.ErrorIs(t, err, apperrors.ErrCorpusLoad)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"provisions":[{"id":"eins"}]}`), 0o600))
	_, err = LoadFile(bad)
	assert.ErrorIs(t, err, apperrors.ErrCorpusLoad)
}

func TestPrepare(t *testing.T) {
	raw := []Provision{
		{ID: 1, BookCode: " StGB ", Title: "§ 211   Mord", Text: "  Der Mörder   wird bestraft.  "},
		{ID: 2, Title: "§ 213 (weggefallen)", Text: "-----"},
		{ID: 3, Title: "§ 214", Text: "(weggefallen)"},
		{ID: 4, Title: "§ 215", Text: "kurz"},
		{ID: 5, Title: "", Text: "Text ohne Titel"},
	}
	kept, rejected := Prepare(raw)

	require.Len(t, kept, 1)
	assert.Equal(t, "StGB", kept[0].BookCode)
	assert.Equal(t, "§ 211 Mord", kept[0].Title)
	assert.Equal(t, "Der Mörder wird bestraft.", kept[0].Text)
	assert.Equal(t, "https://openlegaldata.io/laws/1/", kept[0].SourceURL)

	require.Len(t, rejected, 2)
	var verr *ValidationError
	require.ErrorAs(t, rejected[0], &verr)
	assert.Equal(t, int64(4), verr.ID)
	assert.Contains(t, verr.Fields, "text")
	require.ErrorAs(t, rejected[1], &verr)
	assert.Contains(t, verr.Fields, "title")
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b", CleanText("  a    b \n"))
	assert.Equal(t, "a\n\n\nb", CleanText("a\n\n\n\n\n\nb"))
}
