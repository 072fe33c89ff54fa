package biz

import (
	"context"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/qgpt/internal/qgpt/embedder"
	"github.com/kart-io/qgpt/internal/qgpt/identity"
	"github.com/kart-io/qgpt/internal/qgpt/store"
	"github.com/kart-io/qgpt/pkg/errors"
)

// SearchResult 检索结果，Score = 1 - Distance。
type SearchResult struct {
	ID         int64   `json:"-"`
	Score      float32 `json:"score"`
	Distance   float32 `json:"distance"`
	FileName   string  `json:"filename"`
	SheetName  string  `json:"sheet_name"`
	OriginalID string  `json:"original_id"`
	Text       string  `json:"text"`
}

// RetrievedID 返回原始 ID。
func (r SearchResult) RetrievedID() string { return r.OriginalID }

// RetrievedFile 返回文件名。
func (r SearchResult) RetrievedFile() string { return r.FileName }

// Searcher 绑定单个数据库与集合的检索客户端。
type Searcher struct {
	store      store.VectorStore
	embedder   *embedder.Embedder
	dbName     string
	collection string
	metric     store.Metric
	warnOnce   sync.Once
}

// OpenSearcher 打开指定数据库中的集合。dbName 必须显式给出；
// collection 为空时由数据库名推导，推导的集合不存在而库中只有一个集合时使用该集合
// （缩短过的数据库名无法还原集合名）。
func OpenSearcher(ctx context.Context, catalog store.Catalog, emb *embedder.Embedder, dbName, collection string) (*Searcher, error) {
	if dbName == "" {
		return nil, errors.ErrAmbiguousTarget.WithMessage("a database must be given with --db")
	}

	s, err := catalog.Open(ctx, dbName, false)
	if err != nil {
		return nil, err
	}
	collection, err = resolveCollection(ctx, s, dbName, collection)
	if err != nil {
		return nil, err
	}
	metric, err := s.Metric(ctx, collection)
	if err != nil {
		return nil, err
	}

	logger.Debugw("searcher ready", "db", dbName, "collection", collection, "metric", metric)
	return &Searcher{store: s, embedder: emb, dbName: dbName, collection: collection, metric: metric}, nil
}

func resolveCollection(ctx context.Context, s store.VectorStore, dbName, collection string) (string, error) {
	explicit := collection != ""
	if !explicit {
		collection = identity.CollectionForDB(dbName)
	}

	ok, err := s.HasCollection(ctx, collection)
	if err != nil {
		return "", err
	}
	if ok {
		return collection, nil
	}
	if !explicit {
		names, err := s.ListCollections(ctx)
		if err != nil {
			return "", err
		}
		if len(names) == 1 {
			logger.Infow("using the only collection in database", "db", dbName, "collection", names[0])
			return names[0], nil
		}
	}
	return "", errors.ErrCollectionNotFound.WithMessagef("collection %s not found in %s", collection, dbName)
}

// DBName 返回数据库名。
func (s *Searcher) DBName() string {
	return s.dbName
}

// Collection 返回集合名。
func (s *Searcher) Collection() string {
	return s.collection
}

// Search 编码查询并返回前 k 条结果，不做重排或过滤。fields 为空时返回全部字段。
func (s *Searcher) Search(ctx context.Context, query string, k int, fields []string) ([]SearchResult, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.SearchVector(ctx, vector, k, fields)
}

// SearchVector 用已编码的向量检索。
func (s *Searcher) SearchVector(ctx context.Context, vector []float32, k int, fields []string) ([]SearchResult, error) {
	if !s.metric.Bounded() {
		s.warnOnce.Do(func() {
			logger.Warnw("collection metric is not bounded, scores are not similarities",
				"collection", s.collection, "metric", s.metric)
		})
	}
	if len(fields) == 0 {
		fields = store.DefaultFields
	}

	hits, err := s.store.Search(ctx, s.collection, vector, k, fields)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		results[i] = SearchResult{
			ID:         h.ID,
			Score:      1 - h.Distance,
			Distance:   h.Distance,
			FileName:   h.Fields[store.FieldFileName],
			SheetName:  h.Fields[store.FieldSheetName],
			OriginalID: h.Fields[store.FieldOriginalID],
			Text:       h.Fields[store.FieldText],
		}
	}
	return results, nil
}
