package router_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/qgpt/internal/qgpt/biz"
	"github.com/kart-io/qgpt/internal/qgpt/embedder"
	"github.com/kart-io/qgpt/internal/qgpt/handler"
	"github.com/kart-io/qgpt/internal/qgpt/identity"
	"github.com/kart-io/qgpt/internal/qgpt/metrics"
	"github.com/kart-io/qgpt/internal/qgpt/router"
	"github.com/kart-io/qgpt/internal/qgpt/store"
	"github.com/kart-io/qgpt/pkg/errors"
	"github.com/kart-io/qgpt/pkg/llm/fake"
	"github.com/kart-io/qgpt/pkg/middleware"
	"github.com/kart-io/qgpt/pkg/utils/json"
)

const testDim = 1024

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

func setup(t *testing.T) (*gin.Engine, string) {
	e, db, _ := setupWithMetrics(t)
	return e, db
}

func setupWithMetrics(t *testing.T) (*gin.Engine, string, *metrics.Metrics) {
	t.Helper()
	base := t.TempDir()
	catalog := store.NewSQLiteCatalog(filepath.Join(base, "db"), nil)
	t.Cleanup(func() { _ = catalog.Close() })
	emb := embedder.New(fake.New(testDim), testDim)

	corpusPath := filepath.Join(base, "Corpora", "Table7_OTTQA", "ottqa.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(corpusPath), 0o755))
	items := make([]map[string]any, 4)
	for i := range items {
		items[i] = map[string]any{"id": i, "Text": fmt.Sprintf("topic%d", i), "FileName": fmt.Sprintf("t%d.csv", i)}
	}
	data, err := json.Marshal(items)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(corpusPath, data, 0o644))

	cfg := biz.DefaultIndexerConfig()
	cfg.CorpusDir = filepath.Join(base, "Corpora")
	cfg.Dim = testDim
	report, err := biz.NewIndexer(catalog, emb, identity.NewResolver("Corpora"), cfg).Build(context.Background(), corpusPath, false)
	require.NoError(t, err)

	m := metrics.New()
	return router.NewEngine(gin.TestMode, handler.New(catalog, emb, 2, m), m), report.DBName, m
}

func do(t *testing.T, e *gin.Engine, method, path string, body any, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			buf.Write(data)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestHealthz(t *testing.T) {
	e, _ := setup(t)
	w, env := do(t, e, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
	assert.Equal(t, w.Header().Get(middleware.HeaderXRequestID), env.RequestID)
}

func TestListDatabases(t *testing.T) {
	e, db := setup(t)
	w, env := do(t, e, http.MethodGet, "/v1/databases", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got handler.DatabasesResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "sqlite", got.Store)
	assert.Equal(t, []string{db}, got.Databases)
}

func TestSearch(t *testing.T) {
	e, db := setup(t)

	w, env := do(t, e, http.MethodPost, "/v1/search", map[string]any{"db": db, "query": "topic2"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got handler.SearchResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, db, got.DB)
	require.Len(t, got.Results, 2, "default top_k")
	assert.Equal(t, "t2.csv", got.Results[0].FileName)
	assert.Equal(t, "2", got.Results[0].OriginalID)

	w, env = do(t, e, http.MethodPost, "/v1/search", map[string]any{"db": db, "query": "topic2", "top_k": 4}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Len(t, got.Results, 4)
}

func TestSearchErrors(t *testing.T) {
	e, db := setup(t)

	tests := []struct {
		name   string
		body   any
		header map[string]string
		status int
		code   int
		msg    string
	}{
		{
			name:   "malformed body",
			body:   "{",
			status: http.StatusBadRequest,
			code:   errors.ErrBadRequest.Code,
		},
		{
			name:   "blank query",
			body:   map[string]any{"db": db, "query": "   "},
			status: http.StatusBadRequest,
			code:   errors.ErrInvalidParam.Code,
			msg:    "query must not be blank",
		},
		{
			name:   "blank query in chinese",
			body:   map[string]any{"db": db, "query": ""},
			header: map[string]string{"Accept-Language": "zh-CN"},
			status: http.StatusBadRequest,
			code:   errors.ErrInvalidParam.Code,
			msg:    "query不能为空白",
		},
		{
			name:   "missing db",
			body:   map[string]any{"query": "x"},
			status: http.StatusBadRequest,
			code:   errors.ErrInvalidParam.Code,
		},
		{
			name:   "unknown db",
			body:   map[string]any{"db": "qgpt_nope.db", "query": "x"},
			status: http.StatusNotFound,
			code:   errors.ErrDatabaseNotFound.Code,
		},
		{
			name:   "unknown collection",
			body:   map[string]any{"db": db, "collection": "emb_nope", "query": "x"},
			status: http.StatusNotFound,
			code:   errors.ErrCollectionNotFound.Code,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, e, http.MethodPost, "/v1/search", tt.body, tt.header)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, env.Code)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, env.Message)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	e, db := setup(t)
	w, env := do(t, e, http.MethodPost, "/v1/evaluate", map[string]any{
		"db":           db,
		"query":        "topic1",
		"top_k":        2,
		"ground_truth": []string{"dir/t1.csv", "t3.csv"},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "topic1", got["query"])
	assert.EqualValues(t, 2, got["results_count"])
	assert.EqualValues(t, 1, got["hits_by_file"])
	assert.InDelta(t, 0.5, got["recall_at_k"], 1e-9)
	assert.InDelta(t, 0.5, got["precision_at_k"], 1e-9)
}

func TestMetrics(t *testing.T) {
	e, db, m := setupWithMetrics(t)

	do(t, e, http.MethodPost, "/v1/search", map[string]any{"db": db, "query": "topic2"}, nil)
	do(t, e, http.MethodPost, "/v1/search", map[string]any{"db": "qgpt_nope.db", "query": "x"}, nil)
	do(t, e, http.MethodPost, "/v1/evaluate", map[string]any{"db": db, "query": "topic1", "ground_truth": []string{"t1.csv"}}, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SearchesTotal.WithLabelValues(db, "ok")), "search and evaluate both record a search")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodPost, "/v1/search", "404")))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "qgpt_searches_total")
	assert.Contains(t, w.Body.String(), "qgpt_query_recall_at_k_count 1")
}
