package worms

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbio/occurrence-screening/internal/observability"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(baseURL string, batchSize int) *Client {
	return NewClient(baseURL, 5*time.Second, batchSize, testMetrics(), testLogger())
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set(headerContentType, contentTypeJSON)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func intPtr(v int) *int { return &v }

func TestClient_NormalizeIDs_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/AphiaRecordsByAphiaIDs", r.URL.Path)
		assert.Equal(t, []string{"127405"}, r.URL.Query()["aphiaids[]"])

		writeJSON(t, w, []*aphiaRecord{
			{AphiaID: 127405, ValidAphiaID: intPtr(105838), Phylum: "Chordata", Class: "Teleostei", Rank: "Species"},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL, 50)
	result, err := c.NormalizeIDs(context.Background(), []int{127405})
	require.NoError(t, err)
	require.Contains(t, result, 127405)
	assert.Equal(t, 105838, result[127405].ValidAphiaID)
	assert.Equal(t, "Chordata", result[127405].Phylum)
	assert.Equal(t, "Species", result[127405].Rank)
}

func TestClient_NormalizeIDs_BatchFailureIsolated(t *testing.T) {
	// batchSize 1 forces one request per identifier; the first identifier's
	// batch fails, the second must still resolve.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := r.URL.Query()["aphiaids[]"]
		require.Len(t, ids, 1)
		if ids[0] == "111" {
			http.Error(w, "upstream unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(t, w, []*aphiaRecord{
			{AphiaID: 222, ValidAphiaID: intPtr(222), Rank: "Species"},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL, 1)
	result, err := c.NormalizeIDs(context.Background(), []int{111, 222})
	require.NoError(t, err)
	assert.NotContains(t, result, 111)
	require.Contains(t, result, 222)
	assert.Equal(t, 222, result[222].ValidAphiaID)
}

func TestClient_NormalizeIDs_NullEntriesSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, []*aphiaRecord{
			nil,
			{AphiaID: 127405, ValidAphiaID: intPtr(127405)},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL, 50)
	result, err := c.NormalizeIDs(context.Background(), []int{1, 127405})
	require.NoError(t, err)
	assert.Len(t, result, 1)
	assert.Contains(t, result, 127405)
}

func TestClient_NormalizeIDs_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 50)
	result, err := c.NormalizeIDs(context.Background(), []int{127405})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestClient_NormalizeIDs_TotalFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 50)
	result, err := c.NormalizeIDs(context.Background(), []int{1, 2, 3})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestClient_NormalizeIDs_EmptyInput(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 50)
	result, err := c.NormalizeIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Zero(t, calls.Load())
}

func TestClient_MatchNames_ExactAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/AphiaRecordsByMatchNames", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("marine_only"))
		assert.Equal(t, "false", r.URL.Query().Get("extant_only"))
		assert.Equal(t, []string{"Thunnus albacares"}, r.URL.Query()["scientificnames[]"])

		writeJSON(t, w, [][]*aphiaRecord{
			{
				{AphiaID: 127405, ValidAphiaID: intPtr(127405), Phylum: "Chordata", Class: "Teleostei", Rank: "Species", MatchType: "exact"},
			},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL, 50)
	result, err := c.MatchNames(context.Background(), []string{"Thunnus albacares"})
	require.NoError(t, err)
	require.Contains(t, result, "Thunnus albacares")
	m := result["Thunnus albacares"]
	assert.Equal(t, 127405, m.AphiaID)
	assert.Equal(t, "urn:lsid:marinespecies.org:taxname:127405", m.LSID)
	assert.Equal(t, "Species", m.Rank)
}

func TestClient_MatchNames_SoleNonExactCandidateIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, [][]*aphiaRecord{
			{
				{AphiaID: 127405, MatchType: "near_1"},
			},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL, 50)
	result, err := c.MatchNames(context.Background(), []string{"Thunnus albacores"})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestClient_MatchNames_FirstExactWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, [][]*aphiaRecord{
			{
				{AphiaID: 1, MatchType: "phonetic"},
				{AphiaID: 2, ValidAphiaID: intPtr(2), MatchType: "exact"},
				{AphiaID: 3, MatchType: "exact"},
			},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL, 50)
	result, err := c.MatchNames(context.Background(), []string{"Solea solea"})
	require.NoError(t, err)
	require.Contains(t, result, "Solea solea")
	assert.Equal(t, 2, result["Solea solea"].AphiaID)
}

func TestClient_MatchNames_PositionalAlignment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		names := r.URL.Query()["scientificnames[]"]
		require.Len(t, names, 2)
		writeJSON(t, w, [][]*aphiaRecord{
			{}, // no candidates for the first name
			{{AphiaID: 127405, ValidAphiaID: intPtr(127405), MatchType: "exact"}},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL, 50)
	result, err := c.MatchNames(context.Background(), []string{"Nomen dubium", "Thunnus albacares"})
	require.NoError(t, err)
	assert.NotContains(t, result, "Nomen dubium")
	assert.Contains(t, result, "Thunnus albacares")
}

func TestClient_MatchNames_BatchFailureIsolated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		names := r.URL.Query()["scientificnames[]"]
		require.Len(t, names, 1)
		if names[0] == "Broken batch" {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		writeJSON(t, w, [][]*aphiaRecord{
			{{AphiaID: 127405, ValidAphiaID: intPtr(127405), MatchType: "exact"}},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL, 1)
	result, err := c.MatchNames(context.Background(), []string{"Broken batch", "Thunnus albacares"})
	require.NoError(t, err)
	assert.NotContains(t, result, "Broken batch")
	assert.Contains(t, result, "Thunnus albacares")
}
