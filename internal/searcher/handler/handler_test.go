package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gesetzesinfo/lawsearch/internal/corpus"
	"github.com/gesetzesinfo/lawsearch/internal/feedback"
	"github.com/gesetzesinfo/lawsearch/internal/searcher"
)

type fixture struct {
	mux   *http.ServeMux
	store *feedback.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	provisions, err := corpus.NewStore([]corpus.Provision{
		{ID: 1, BookCode: "StGB", Title: "Mord", Text: "Mord", SourceURL: "https://openlegaldata.io/laws/1/"},
		{ID: 2, BookCode: "StGB", Title: "Totschlag", Text: "Totschlag", SourceURL: "https://openlegaldata.io/laws/2/"},
		{ID: 3, BookCode: "StGB", Title: "Diebstahl", Text: "Diebstahl", SourceURL: "https://openlegaldata.io/laws/3/"},
	})
	require.NoError(t, err)

	reg := feedback.NewMemoryRegistry(time.Hour)
	store := feedback.NewMemoryStore()
	h := New(
		searcher.New(provisions, reg, searcher.Config{}),
		feedback.NewService(reg, store, nil, nil),
		nil,
		Limits{MinQueryLength: 3, MaxQueryLength: 50},
	)
	mux := http.NewServeMux()
	h.Register(mux)
	return &fixture{mux: mux, store: store}
}

func (f *fixture) get(t *testing.T, path string, params url.Values) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	target := path
	if params != nil {
		target += "?" + params.Encode()
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func (f *fixture) search(t *testing.T, q string) searcher.Response {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?"+url.Values{"q": {q}}.Encode(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp searcher.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSearch_ReturnsRankedResults(t *testing.T) {
	f := newFixture(t)
	resp := f.search(t, "Diebstahl")

	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 1, resp.Results[0].ID)
	assert.Equal(t, int64(3), resp.Results[0].ProvisionID)
	assert.Equal(t, "https://openlegaldata.io/laws/3/", resp.Results[0].SourceURL)
	_, err := uuid.Parse(resp.QueryID)
	assert.NoError(t, err)
}

func TestSearch_NoResultsIsOK(t *testing.T) {
	f := newFixture(t)
	rec, body := f.get(t, "/api/search", url.Values{"q": {"Steuerhinterziehung"}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no_results", body["code"])
	assert.Equal(t, 0.0, body["total"])
	assert.Equal(t, []any{}, body["results"])
	assert.NotEmpty(t, body["message"])
}

func TestSearch_RejectsBadQueries(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		q    string
		code string
	}{
		{"missing", "", "empty_query"},
		{"blank", "    ", "empty_query"},
		{"too short", "ab", "invalid_query"},
		{"too long", strings.Repeat("Recht ", 20), "invalid_query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.get(t, "/api/search", url.Values{"q": {tt.q}})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRate_AfterSearch(t *testing.T) {
	f := newFixture(t)
	resp := f.search(t, "Mord")

	rec, body := f.get(t, "/api/rate", url.Values{
		"id":  {"1"},
		"qid": {resp.QueryID},
		"r":   {"positive"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 1, f.store.Len())

	rec, _ = f.get(t, "/api/rate", url.Values{
		"id":  {"1"},
		"qid": {resp.QueryID},
		"r":   {"negative"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.store.Len())
}

func TestRate_UnknownReference(t *testing.T) {
	f := newFixture(t)
	resp := f.search(t, "Totschlag")

	tests := []struct {
		name string
		id   string
		qid  string
	}{
		{"never issued", "1", uuid.NewString()},
		{"result out of range", "2", resp.QueryID},
		{"integer query id", "1", "42"},
		{"malformed query id", "1", "not-a-uuid"},
		{"zero result id", "0", resp.QueryID},
		{"non numeric result id", "eins", resp.QueryID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.get(t, "/api/rate", url.Values{"id": {tt.id}, "qid": {tt.qid}, "r": {"positive"}})
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "unknown_reference", body["code"])
		})
	}
	assert.Zero(t, f.store.Len())
}

func TestRate_RejectsBadParams(t *testing.T) {
	f := newFixture(t)
	qid := uuid.NewString()
	tests := []struct {
		name   string
		params url.Values
	}{
		{"missing id", url.Values{"qid": {qid}, "r": {"positive"}}},
		{"missing qid", url.Values{"id": {"1"}, "r": {"positive"}}},
		{"missing rating", url.Values{"id": {"1"}, "qid": {qid}}},
		{"unknown rating", url.Values{"id": {"1"}, "qid": {qid}, "r": {"maybe"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.get(t, "/api/rate", tt.params)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, body["error"])
			assert.Equal(t, "invalid_input", body["code"])
		})
	}
}

func TestCounts(t *testing.T) {
	f := newFixture(t)

	rec, body := f.get(t, "/api/laws/count", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3.0, body["count"])

	rec, body = f.get(t, "/api/terms/count", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3.0, body["count"])
}

func TestCacheEndpoints_Disabled(t *testing.T) {
	f := newFixture(t)
	_, body := f.get(t, "/api/cache/stats", nil)
	assert.Equal(t, "disabled", body["status"])

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
