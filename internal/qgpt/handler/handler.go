// Package handler 提供检索与评估的 HTTP 接口。
package handler

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/qgpt/internal/pkg/evaluator"
	"github.com/kart-io/qgpt/internal/qgpt/biz"
	"github.com/kart-io/qgpt/internal/qgpt/embedder"
	"github.com/kart-io/qgpt/internal/qgpt/metrics"
	"github.com/kart-io/qgpt/internal/qgpt/store"
	"github.com/kart-io/qgpt/pkg/response"
	"github.com/kart-io/qgpt/pkg/validator"
)

// SearchRequest 检索请求。
type SearchRequest struct {
	DB         string `json:"db" validate:"notblank"`
	Collection string `json:"collection"`
	Query      string `json:"query" validate:"notblank"`
	TopK       int    `json:"top_k" validate:"omitempty,gte=1,lte=1000"`
}

// EvaluateRequest 单条查询评估请求。
type EvaluateRequest struct {
	SearchRequest
	GroundTruth []string `json:"ground_truth"`
}

// SearchResponse 检索响应。
type SearchResponse struct {
	DB         string             `json:"db"`
	Collection string             `json:"collection"`
	Query      string             `json:"query"`
	Results    []biz.SearchResult `json:"results"`
}

// DatabasesResponse 数据库列表响应。
type DatabasesResponse struct {
	Store     string   `json:"store"`
	Databases []string `json:"databases"`
}

// Handler 检索服务的 HTTP 处理器。同一数据库与集合的 Searcher 在进程内复用。
type Handler struct {
	catalog  store.Catalog
	embedder *embedder.Embedder
	topK     int
	metrics  *metrics.Metrics

	mu        sync.Mutex
	searchers map[string]*biz.Searcher
}

// New 创建处理器，m 为 nil 时不记录指标。
func New(catalog store.Catalog, emb *embedder.Embedder, topK int, m *metrics.Metrics) *Handler {
	if topK <= 0 {
		topK = 5
	}
	return &Handler{
		catalog:   catalog,
		embedder:  emb,
		topK:      topK,
		metrics:   m,
		searchers: make(map[string]*biz.Searcher),
	}
}

// Healthz 存活检查。
func (h *Handler) Healthz(c *gin.Context) {
	response.OK(c, gin.H{"status": "ok"})
}

// ListDatabases 列出已构建的数据库。
func (h *Handler) ListDatabases(c *gin.Context) {
	names, err := h.catalog.List(c.Request.Context())
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	response.OK(c, DatabasesResponse{Store: h.catalog.Name(), Databases: names})
}

// Search 检索前 top_k 条结果。
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if !h.bind(c, &req) {
		return
	}

	searcher, results, err := h.search(c.Request.Context(), &req)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, SearchResponse{
		DB:         searcher.DBName(),
		Collection: searcher.Collection(),
		Query:      req.Query,
		Results:    results,
	})
}

// Evaluate 检索并对照真值评估单条查询。
func (h *Handler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if !h.bind(c, &req) {
		return
	}

	_, results, err := h.search(c.Request.Context(), &req.SearchRequest)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	record := evaluator.EvaluateQuery(req.Query, results, req.GroundTruth)
	if record.HasMetrics() {
		h.metrics.RecordRecall(record.RecallAtK)
	}
	response.OK(c, record)
}

func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.FailWithBindOrValidation(c, err)
		return false
	}
	if verr := validator.StructWithLang(req, response.Lang(c)); verr != nil {
		response.FailWithBindOrValidation(c, verr)
		return false
	}
	return true
}

func (h *Handler) search(ctx context.Context, req *SearchRequest) (*biz.Searcher, []biz.SearchResult, error) {
	searcher, err := h.searcher(ctx, req.DB, req.Collection)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()
	results, err := searcher.Search(ctx, req.Query, h.k(req.TopK), nil)
	h.metrics.RecordSearch(searcher.DBName(), time.Since(start), err)
	return searcher, results, err
}

func (h *Handler) k(topK int) int {
	if topK <= 0 {
		return h.topK
	}
	return topK
}

func (h *Handler) searcher(ctx context.Context, db, collection string) (*biz.Searcher, error) {
	key := db + "\x00" + collection

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.searchers[key]; ok {
		return s, nil
	}
	s, err := biz.OpenSearcher(ctx, h.catalog, h.embedder, db, collection)
	if err != nil {
		return nil, err
	}
	h.searchers[key] = s
	return s, nil
}
