package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kart-io/logger"
	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/qgpt/internal/qgpt/identity"
	"github.com/kart-io/qgpt/pkg/component/milvus"
	"github.com/kart-io/qgpt/pkg/errors"
	milvusopts "github.com/kart-io/qgpt/pkg/options/milvus"
)

// 元数据字段的 VarChar 长度上限。
const (
	milvusTextMaxLen  = 65535
	milvusShortMaxLen = 512
)

// MilvusDatabase 将数据库文件名映射为 Milvus database 名：去掉 .db，"-" 替换为 "_"。
func MilvusDatabase(dbName string) string {
	name := strings.TrimSuffix(dbName, identity.DBSuffix)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.ReplaceAll(name, "-", "_")
}

// MilvusCatalog 每个数据库对应 Milvus 服务端的一个 database。
type MilvusCatalog struct {
	opts *milvusopts.Options

	mu     sync.Mutex
	admin  *milvus.Client
	stores map[string]*MilvusStore
}

var _ Catalog = (*MilvusCatalog)(nil)

// NewMilvusCatalog 创建 Milvus 目录。
func NewMilvusCatalog(opts *milvusopts.Options) *MilvusCatalog {
	if opts == nil {
		opts = milvusopts.NewOptions()
	}
	return &MilvusCatalog{opts: opts, stores: make(map[string]*MilvusStore)}
}

// Name 返回后端名称。
func (c *MilvusCatalog) Name() string {
	return "milvus"
}

func (c *MilvusCatalog) adminClient(ctx context.Context) (*milvus.Client, error) {
	if c.admin != nil {
		return c.admin, nil
	}
	client, err := milvus.New(ctx, c.opts, "")
	if err != nil {
		return nil, errors.ErrStoreFailed.WithCause(err)
	}
	c.admin = client
	return client, nil
}

func (c *MilvusCatalog) databases(ctx context.Context) ([]string, error) {
	admin, err := c.adminClient(ctx)
	if err != nil {
		return nil, err
	}
	dbs, err := admin.ListDatabases(ctx)
	if err != nil {
		return nil, errors.ErrStoreFailed.WithCause(err)
	}
	return dbs, nil
}

// Exists 判断 database 是否存在。
func (c *MilvusCatalog) Exists(ctx context.Context, dbName string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exists(ctx, dbName)
}

func (c *MilvusCatalog) exists(ctx context.Context, dbName string) (bool, error) {
	dbs, err := c.databases(ctx)
	if err != nil {
		return false, err
	}
	target := MilvusDatabase(dbName)
	for _, db := range dbs {
		if db == target {
			return true, nil
		}
	}
	return false, nil
}

// List 列出 qgpt_ 前缀的 database，以 .db 文件名形式返回。
func (c *MilvusCatalog) List(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dbs, err := c.databases(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, db := range dbs {
		if strings.HasPrefix(db, identity.DBPrefix) {
			names = append(names, db+identity.DBSuffix)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Open 连接到 database，create 为 true 时按需创建。
func (c *MilvusCatalog) Open(ctx context.Context, dbName string, create bool) (VectorStore, error) {
	target := MilvusDatabase(dbName)

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.stores[target]; ok {
		return s, nil
	}

	ok, err := c.exists(ctx, dbName)
	if err != nil {
		return nil, err
	}
	if !ok {
		if !create {
			return nil, errors.ErrDatabaseNotFound.WithMessagef("milvus database %s not found", target)
		}
		if err := c.admin.CreateDatabase(ctx, target); err != nil {
			return nil, errors.ErrStoreFailed.WithCause(err)
		}
		logger.Infow("created milvus database", "database", target)
	}

	client, err := milvus.New(ctx, c.opts, target)
	if err != nil {
		return nil, errors.ErrStoreFailed.WithCause(err)
	}
	s := &MilvusStore{client: client, dims: make(map[string]int), metrics: make(map[string]Metric)}
	c.stores[target] = s
	return s, nil
}

// Close 关闭所有连接。
func (c *MilvusCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx := context.Background()
	var firstErr error
	for name, s := range c.stores {
		if err := s.client.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close milvus database %s: %w", name, err)
		}
		delete(c.stores, name)
	}
	if c.admin != nil {
		if err := c.admin.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		c.admin = nil
	}
	return firstErr
}

// MilvusStore 绑定单个 database 的集合操作。
type MilvusStore struct {
	client *milvus.Client

	mu      sync.Mutex
	dims    map[string]int
	metrics map[string]Metric
}

var _ VectorStore = (*MilvusStore)(nil)

func (s *MilvusStore) requireCollection(ctx context.Context, name string) error {
	ok, err := s.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrCollectionNotFound.WithMessagef("collection %s not found in milvus database %s", name, s.client.Database())
	}
	return nil
}

// HasCollection 判断集合是否存在。
func (s *MilvusStore) HasCollection(ctx context.Context, name string) (bool, error) {
	ok, err := s.client.HasCollection(ctx, name)
	if err != nil {
		return false, errors.ErrStoreFailed.WithCause(err)
	}
	return ok, nil
}

// CreateCollection 以显式 int64 主键建集合并建立索引。
func (s *MilvusStore) CreateCollection(ctx context.Context, name string, dim int, metric Metric) error {
	mt, err := milvus.ParseMetric(string(metric))
	if err != nil {
		return errors.ErrQGPTConfig.WithCause(err)
	}
	err = s.client.CreateCollection(ctx, &milvus.CollectionSchema{
		Name:        name,
		Description: "table retrieval index",
		Dimension:   dim,
		Metric:      mt,
		MetaFields: []milvus.MetaField{
			{Name: FieldText, DataType: entity.FieldTypeVarChar, MaxLen: milvusTextMaxLen},
			{Name: FieldOriginalID, DataType: entity.FieldTypeVarChar, MaxLen: milvusShortMaxLen},
			{Name: FieldFileName, DataType: entity.FieldTypeVarChar, MaxLen: milvusShortMaxLen},
			{Name: FieldSheetName, DataType: entity.FieldTypeVarChar, MaxLen: milvusShortMaxLen},
		},
	})
	if err != nil {
		return errors.ErrStoreFailed.WithCause(err)
	}

	s.mu.Lock()
	s.dims[name] = dim
	delete(s.metrics, name)
	s.mu.Unlock()
	return nil
}

// DropCollection 删除集合，不存在时不做任何事。
func (s *MilvusStore) DropCollection(ctx context.Context, name string) error {
	ok, err := s.HasCollection(ctx, name)
	if err != nil || !ok {
		return err
	}
	if err := s.client.DropCollection(ctx, name); err != nil {
		return errors.ErrStoreFailed.WithCause(err)
	}
	s.mu.Lock()
	delete(s.dims, name)
	delete(s.metrics, name)
	s.mu.Unlock()
	return nil
}

// Insert 以列格式写入一批记录并 flush。
func (s *MilvusStore) Insert(ctx context.Context, name string, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	dim := s.dims[name]
	s.mu.Unlock()

	data := &milvus.InsertData{
		IDs:        make([]int64, len(entries)),
		Embeddings: make([][]float32, len(entries)),
		VarChars: map[string][]string{
			FieldText:       make([]string, len(entries)),
			FieldOriginalID: make([]string, len(entries)),
			FieldFileName:   make([]string, len(entries)),
			FieldSheetName:  make([]string, len(entries)),
		},
	}
	for i := range entries {
		e := &entries[i]
		if dim > 0 && len(e.Vector) != dim {
			return 0, errors.ErrDimensionMismatch.WithMessagef(
				"entry %d has dimension %d, collection %s expects %d", e.LocalID, len(e.Vector), name, dim)
		}
		data.IDs[i] = e.LocalID
		data.Embeddings[i] = e.Vector
		for field, values := range data.VarChars {
			values[i] = e.Field(field)
		}
	}

	n, err := s.client.Insert(ctx, name, data)
	if err != nil {
		return 0, errors.ErrStoreFailed.WithCause(err)
	}
	return n, nil
}

// Search 检索并将 Milvus 分数换算为距离。
func (s *MilvusStore) Search(ctx context.Context, name string, vector []float32, k int, fields []string) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	metric, err := s.Metric(ctx, name)
	if err != nil {
		return nil, err
	}

	results, err := s.client.Search(ctx, name, vector, k, fields)
	if err != nil {
		return nil, errors.ErrStoreFailed.WithCause(err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{ID: r.ID, Distance: scoreToDistance(metric, r.Score), Fields: r.Metadata}
	}
	return hits, nil
}

// scoreToDistance COSINE 与 IP 返回相似度，换算为 1-score；L2 本身即距离。
func scoreToDistance(m Metric, score float32) float32 {
	if m == MetricL2 {
		return score
	}
	return 1 - score
}

// Count 返回集合记录数。
func (s *MilvusStore) Count(ctx context.Context, name string) (int64, error) {
	if err := s.requireCollection(ctx, name); err != nil {
		return 0, err
	}
	n, err := s.client.Count(ctx, name)
	if err != nil {
		return 0, errors.ErrStoreFailed.WithCause(err)
	}
	return n, nil
}

// Metric 返回集合向量索引上记录的度量，结果按集合缓存。
func (s *MilvusStore) Metric(ctx context.Context, name string) (Metric, error) {
	if err := s.requireCollection(ctx, name); err != nil {
		return "", err
	}

	s.mu.Lock()
	m, ok := s.metrics[name]
	s.mu.Unlock()
	if ok {
		return m, nil
	}

	mt, err := s.client.IndexMetric(ctx, name)
	if err != nil {
		return "", errors.ErrStoreFailed.WithCause(err)
	}
	m = Metric(mt)

	s.mu.Lock()
	s.metrics[name] = m
	s.mu.Unlock()
	return m, nil
}

// ListCollections 列出集合名称。
func (s *MilvusStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, errors.ErrStoreFailed.WithCause(err)
	}
	sort.Strings(names)
	return names, nil
}

// Close 关闭连接。
func (s *MilvusStore) Close() error {
	return s.client.Close(context.Background())
}
