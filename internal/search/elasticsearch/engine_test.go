package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gule/marketplace/internal/search"
)

// fakeCluster answers the handful of endpoints the engine calls and records
// the requests it saw.
type fakeCluster struct {
	mu          sync.Mutex
	indexExists bool
	requests    []string
	bodies      map[string]string
	handle      func(w http.ResponseWriter, r *http.Request) bool
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	key := r.Method + " " + r.URL.Path

	f.mu.Lock()
	f.requests = append(f.requests, key)
	f.bodies[key] = string(body)
	exists := f.indexExists
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	if f.handle != nil && f.handle(w, r) {
		return
	}

	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/products":
		if exists {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && r.URL.Path == "/products":
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	default:
		_, _ = io.WriteString(w, `{}`)
	}
}

func (f *fakeCluster) body(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func (f *fakeCluster) saw(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r == key {
			return true
		}
	}
	return false
}

func newTestEngine(t *testing.T, f *fakeCluster) *Engine {
	t.Helper()
	if f.bodies == nil {
		f.bodies = make(map[string]string)
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	eng, err := New(context.Background(), srv.URL, "products", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return eng
}

func TestNew_CreatesMissingIndex(t *testing.T) {
	f := &fakeCluster{}
	newTestEngine(t, f)

	require.True(t, f.saw("PUT /products"))
	var mapping map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.body("PUT /products")), &mapping))
	props := mapping["mappings"].(map[string]any)["properties"].(map[string]any)
	assert.Contains(t, props, "seller_id")
	assert.Contains(t, props, "name")
}

func TestNew_KeepsExistingIndex(t *testing.T) {
	f := &fakeCluster{indexExists: true}
	newTestEngine(t, f)

	assert.False(t, f.saw("PUT /products"))
}

func TestNew_CreateIndexError(t *testing.T) {
	f := &fakeCluster{bodies: map[string]string{}}
	f.handle = func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method != http.MethodPut {
			return false
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"illegal_argument_exception","reason":"bad analyzer"},"status":400}`)
		return true
	}
	srv := httptest.NewServer(f)
	defer srv.Close()

	_, err := New(context.Background(), srv.URL, "products", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad analyzer")
}

func TestEngine_Index(t *testing.T) {
	f := &fakeCluster{indexExists: true}
	eng := newTestEngine(t, f)

	doc := &search.Document{ID: "p-1", SellerID: "s-1", Name: "Bakır cezve", Price: 45000, Currency: "TRY", CreatedAt: time.Now().UTC()}
	require.NoError(t, eng.Index(context.Background(), doc))

	require.True(t, f.saw("PUT /products/_doc/p-1"))
	var got search.Document
	require.NoError(t, json.Unmarshal([]byte(f.body("PUT /products/_doc/p-1")), &got))
	assert.Equal(t, "Bakır cezve", got.Name)
	assert.Equal(t, "s-1", got.SellerID)
}

func TestEngine_Delete_MissingIsNotAnError(t *testing.T) {
	f := &fakeCluster{indexExists: true}
	f.handle = func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method != http.MethodDelete {
			return false
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"result":"not_found"}`)
		return true
	}
	eng := newTestEngine(t, f)

	require.NoError(t, eng.Delete(context.Background(), "gone"))
	assert.True(t, f.saw("DELETE /products/_doc/gone"))
}

func TestEngine_Search(t *testing.T) {
	f := &fakeCluster{indexExists: true}
	f.handle = func(w http.ResponseWriter, r *http.Request) bool {
		if !strings.HasSuffix(r.URL.Path, "/_search") {
			return false
		}
		_, _ = io.WriteString(w, `{"took":3,"hits":{"total":{"value":7},"hits":[{"_id":"p-2"},{"_id":"p-1"}]}}`)
		return true
	}
	eng := newTestEngine(t, f)

	res, err := eng.Search(context.Background(), &search.Query{Text: "cezve", SellerID: "s-1", Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"p-2", "p-1"}, res.IDs)
	assert.Equal(t, 7, res.Total)

	body := f.body("POST /products/_search")
	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &sent))
	assert.EqualValues(t, 2, sent["from"])
	assert.EqualValues(t, 2, sent["size"])
	assert.Contains(t, body, `"seller_id":"s-1"`)
	assert.Contains(t, body, `"query":"cezve"`)
}

func TestEngine_BulkIndex(t *testing.T) {
	t.Run("empty batch sends nothing", func(t *testing.T) {
		f := &fakeCluster{indexExists: true}
		eng := newTestEngine(t, f)

		require.NoError(t, eng.BulkIndex(context.Background(), nil))
		assert.False(t, f.saw("POST /products/_bulk"))
	})

	t.Run("writes action and document lines", func(t *testing.T) {
		f := &fakeCluster{indexExists: true}
		f.handle = func(w http.ResponseWriter, r *http.Request) bool {
			if !strings.HasSuffix(r.URL.Path, "/_bulk") {
				return false
			}
			_, _ = io.WriteString(w, `{"errors":false,"items":[]}`)
			return true
		}
		eng := newTestEngine(t, f)

		docs := []search.Document{{ID: "p-1", Name: "Kilim"}, {ID: "p-2", Name: "Cezve"}}
		require.NoError(t, eng.BulkIndex(context.Background(), docs))

		lines := strings.Split(strings.TrimSpace(f.body("POST /products/_bulk")), "\n")
		require.Len(t, lines, 4)
		assert.Contains(t, lines[0], `"_id":"p-1"`)
		assert.Contains(t, lines[3], `"name":"Cezve"`)
	})

	t.Run("reports per item failures", func(t *testing.T) {
		f := &fakeCluster{indexExists: true}
		f.handle = func(w http.ResponseWriter, r *http.Request) bool {
			if !strings.HasSuffix(r.URL.Path, "/_bulk") {
				return false
			}
			_, _ = io.WriteString(w, `{"errors":true,"items":[{"index":{"_id":"p-2","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad price"}}}]}`)
			return true
		}
		eng := newTestEngine(t, f)

		err := eng.BulkIndex(context.Background(), []search.Document{{ID: "p-2"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "id=p-2")
		assert.Contains(t, err.Error(), "bad price")
	})
}

func TestEngine_Ping(t *testing.T) {
	f := &fakeCluster{indexExists: true}
	eng := newTestEngine(t, f)

	require.NoError(t, eng.Ping(context.Background()))
	assert.True(t, f.saw("HEAD /"))
}

func TestBuildQuery_MatchAllWithoutText(t *testing.T) {
	q := buildQuery(&search.Query{Page: 1, PerPage: 20})

	must := q["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	assert.Contains(t, must[0], "match_all")
	assert.NotContains(t, q["query"].(map[string]any)["bool"], "filter")
	assert.Equal(t, 0, q["from"])
}
