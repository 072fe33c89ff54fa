package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"gorm.io/gorm"

	"github.com/kart-io/qgpt/internal/qgpt/identity"
	"github.com/kart-io/qgpt/pkg/component/sqlite"
	"github.com/kart-io/qgpt/pkg/errors"
	sqliteopts "github.com/kart-io/qgpt/pkg/options/sqlite"
)

// collectionModel 集合元数据。
type collectionModel struct {
	Name      string `gorm:"primaryKey;size:64"`
	Dim       int    `gorm:"not null"`
	Metric    string `gorm:"size:16;not null"`
	CreatedAt time.Time
}

func (collectionModel) TableName() string { return "qgpt_collections" }

// entryModel 集合中的一条记录。
type entryModel struct {
	Collection string `gorm:"primaryKey;size:64"`
	ID         int64  `gorm:"primaryKey;autoIncrement:false"`
	Vector     []byte `gorm:"not null"`
	Text       string `gorm:"column:text"`
	OriginalID string `gorm:"column:original_id"`
	FileName   string `gorm:"column:filename"`
	SheetName  string `gorm:"column:sheet_name"`
}

func (entryModel) TableName() string { return "qgpt_entries" }

// insertBatchSize 单条 INSERT 语句的行数，受 SQLite 变量数上限约束。
const insertBatchSize = 500

// SQLiteCatalog 每个数据库对应 dir 下的一个文件。
type SQLiteCatalog struct {
	dir  string
	opts *sqliteopts.Options

	mu     sync.Mutex
	stores map[string]*SQLiteStore
}

var _ Catalog = (*SQLiteCatalog)(nil)

// NewSQLiteCatalog 创建 sqlite 目录。
func NewSQLiteCatalog(dir string, opts *sqliteopts.Options) *SQLiteCatalog {
	if opts == nil {
		opts = sqliteopts.NewOptions()
	}
	return &SQLiteCatalog{dir: dir, opts: opts, stores: make(map[string]*SQLiteStore)}
}

// Name 返回后端名称。
func (c *SQLiteCatalog) Name() string {
	return "sqlite"
}

// Path 返回数据库文件路径。含路径分隔符的名称按路径处理，否则位于 dir 下。
func (c *SQLiteCatalog) Path(dbName string) string {
	if !strings.HasSuffix(dbName, identity.DBSuffix) {
		dbName += identity.DBSuffix
	}
	if filepath.IsAbs(dbName) || strings.ContainsRune(dbName, filepath.Separator) || strings.Contains(dbName, "/") {
		return filepath.Clean(dbName)
	}
	return filepath.Join(c.dir, dbName)
}

// Exists 判断数据库文件是否存在。
func (c *SQLiteCatalog) Exists(_ context.Context, dbName string) (bool, error) {
	info, err := os.Stat(c.Path(dbName))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// List 列出 dir 下的 qgpt_*.db 文件。
func (c *SQLiteCatalog) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", c.dir, err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(name, identity.DBPrefix) && strings.HasSuffix(name, identity.DBSuffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Open 打开数据库，同一路径复用同一个句柄。
func (c *SQLiteCatalog) Open(ctx context.Context, dbName string, create bool) (VectorStore, error) {
	path := c.Path(dbName)

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.stores[path]; ok {
		return s, nil
	}

	if !create {
		ok, err := c.Exists(ctx, path)
		if err != nil {
			return nil, errors.ErrStoreFailed.WithCause(err)
		}
		if !ok {
			return nil, errors.ErrDatabaseNotFound.WithMessagef("database %s not found", path)
		}
	}

	s, err := OpenSQLiteStore(ctx, path, c.opts)
	if err != nil {
		return nil, err
	}
	c.stores[path] = s
	logger.Debugw("opened sqlite store", "path", path)
	return s, nil
}

// Close 关闭所有已打开的数据库。
func (c *SQLiteCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for path, s := range c.stores {
		if err := s.client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", path, err)
		}
		delete(c.stores, path)
	}
	return firstErr
}

// SQLiteStore 单文件向量存储，检索时对全集合暴力计算距离。
type SQLiteStore struct {
	client *sqlite.Client

	mu    sync.RWMutex
	cache map[string]*collectionCache
}

// collectionCache 集合向量的内存副本，写入或删除后失效。
type collectionCache struct {
	metric  Metric
	ids     []int64
	vectors [][]float32
}

var _ VectorStore = (*SQLiteStore)(nil)

// OpenSQLiteStore 打开数据库文件并迁移表结构。
func OpenSQLiteStore(ctx context.Context, path string, opts *sqliteopts.Options) (*SQLiteStore, error) {
	client, err := sqlite.New(ctx, path, opts)
	if err != nil {
		return nil, errors.ErrStoreFailed.WithCause(err)
	}
	if err := client.DB().WithContext(ctx).AutoMigrate(&collectionModel{}, &entryModel{}); err != nil {
		_ = client.Close()
		return nil, errors.ErrStoreFailed.WithCause(fmt.Errorf("migrate %s: %w", path, err))
	}
	return &SQLiteStore{client: client, cache: make(map[string]*collectionCache)}, nil
}

func (s *SQLiteStore) db(ctx context.Context) *gorm.DB {
	return s.client.DB().WithContext(ctx)
}

func (s *SQLiteStore) invalidate(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}

func (s *SQLiteStore) collection(ctx context.Context, name string) (*collectionModel, error) {
	var m collectionModel
	err := s.db(ctx).Where("name = ?", name).Limit(1).Find(&m).Error
	if err != nil {
		return nil, errors.ErrStoreFailed.WithCause(err)
	}
	if m.Name == "" {
		return nil, errors.ErrCollectionNotFound.WithMessagef("collection %s not found in %s", name, s.client.Path())
	}
	return &m, nil
}

// HasCollection 判断集合是否存在。
func (s *SQLiteStore) HasCollection(ctx context.Context, name string) (bool, error) {
	var n int64
	if err := s.db(ctx).Model(&collectionModel{}).Where("name = ?", name).Count(&n).Error; err != nil {
		return false, errors.ErrStoreFailed.WithCause(err)
	}
	return n > 0, nil
}

// CreateCollection 创建集合，已存在时报错。
func (s *SQLiteStore) CreateCollection(ctx context.Context, name string, dim int, metric Metric) error {
	if dim <= 0 {
		return errors.ErrQGPTConfig.WithMessagef("collection dimension must be positive, got %d", dim)
	}
	err := s.db(ctx).Create(&collectionModel{Name: name, Dim: dim, Metric: string(metric)}).Error
	if err != nil {
		return errors.ErrStoreFailed.WithCause(fmt.Errorf("create collection %s: %w", name, err))
	}
	s.invalidate(name)
	return nil
}

// DropCollection 删除集合及其记录，集合不存在时不做任何事。
func (s *SQLiteStore) DropCollection(ctx context.Context, name string) error {
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection = ?", name).Delete(&entryModel{}).Error; err != nil {
			return err
		}
		return tx.Where("name = ?", name).Delete(&collectionModel{}).Error
	})
	if err != nil {
		return errors.ErrStoreFailed.WithCause(fmt.Errorf("drop collection %s: %w", name, err))
	}
	s.invalidate(name)
	return nil
}

// Insert 在一个事务中写入一批记录。
func (s *SQLiteStore) Insert(ctx context.Context, name string, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	coll, err := s.collection(ctx, name)
	if err != nil {
		return 0, err
	}

	rows := make([]entryModel, len(entries))
	for i, e := range entries {
		if len(e.Vector) != coll.Dim {
			return 0, errors.ErrDimensionMismatch.WithMessagef(
				"entry %d has dimension %d, collection %s expects %d", e.LocalID, len(e.Vector), name, coll.Dim)
		}
		rows[i] = entryModel{
			Collection: name,
			ID:         e.LocalID,
			Vector:     EncodeVector(e.Vector),
			Text:       e.Text,
			OriginalID: e.OriginalID,
			FileName:   e.FileName,
			SheetName:  e.SheetName,
		}
	}

	err = s.db(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
	s.invalidate(name)
	if err != nil {
		return 0, errors.ErrStoreFailed.WithCause(fmt.Errorf("insert into %s: %w", name, err))
	}
	return len(rows), nil
}

func (s *SQLiteStore) load(ctx context.Context, name string) (*collectionCache, error) {
	s.mu.RLock()
	c, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	coll, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}

	var rows []entryModel
	if err := s.db(ctx).Select("id", "vector").Where("collection = ?", name).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.ErrStoreFailed.WithCause(fmt.Errorf("load %s: %w", name, err))
	}

	c = &collectionCache{
		metric:  Metric(coll.Metric),
		ids:     make([]int64, len(rows)),
		vectors: make([][]float32, len(rows)),
	}
	for i, r := range rows {
		v, err := DecodeVector(r.Vector)
		if err != nil {
			return nil, errors.ErrStoreFailed.WithCause(fmt.Errorf("entry %d: %w", r.ID, err))
		}
		c.ids[i] = r.ID
		c.vectors[i] = v
	}

	s.mu.Lock()
	s.cache[name] = c
	s.mu.Unlock()
	return c, nil
}

// Search 暴力检索最近的 k 条记录。
func (s *SQLiteStore) Search(ctx context.Context, name string, vector []float32, k int, fields []string) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	c, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(c.vectors) > 0 && len(c.vectors[0]) != len(vector) {
		return nil, errors.ErrDimensionMismatch.WithMessagef(
			"query has dimension %d, collection %s has %d", len(vector), name, len(c.vectors[0]))
	}

	top := nearest(c.metric, vector, c.vectors, k)
	ids := make([]int64, len(top))
	for i, t := range top {
		ids[i] = c.ids[t.index]
	}

	byID := make(map[int64]*entryModel, len(ids))
	if len(fields) > 0 && len(ids) > 0 {
		var rows []entryModel
		err := s.db(ctx).
			Select("id", "text", "original_id", "filename", "sheet_name").
			Where("collection = ? AND id IN ?", name, ids).
			Find(&rows).Error
		if err != nil {
			return nil, errors.ErrStoreFailed.WithCause(fmt.Errorf("fetch fields from %s: %w", name, err))
		}
		for i := range rows {
			byID[rows[i].ID] = &rows[i]
		}
	}

	hits := make([]Hit, len(top))
	for i, t := range top {
		id := c.ids[t.index]
		hit := Hit{ID: id, Distance: t.distance, Fields: make(map[string]string, len(fields))}
		if row, ok := byID[id]; ok {
			e := Entry{Text: row.Text, OriginalID: row.OriginalID, FileName: row.FileName, SheetName: row.SheetName}
			for _, f := range fields {
				hit.Fields[f] = e.Field(f)
			}
		}
		hits[i] = hit
	}
	return hits, nil
}

// Count 返回集合记录数。
func (s *SQLiteStore) Count(ctx context.Context, name string) (int64, error) {
	if _, err := s.collection(ctx, name); err != nil {
		return 0, err
	}
	var n int64
	if err := s.db(ctx).Model(&entryModel{}).Where("collection = ?", name).Count(&n).Error; err != nil {
		return 0, errors.ErrStoreFailed.WithCause(err)
	}
	return n, nil
}

// Metric 返回集合创建时的度量。
func (s *SQLiteStore) Metric(ctx context.Context, name string) (Metric, error) {
	coll, err := s.collection(ctx, name)
	if err != nil {
		return "", err
	}
	return Metric(coll.Metric), nil
}

// ListCollections 列出集合名称。
func (s *SQLiteStore) ListCollections(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db(ctx).Model(&collectionModel{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, errors.ErrStoreFailed.WithCause(err)
	}
	return names, nil
}

// Path 返回数据库文件路径。
func (s *SQLiteStore) Path() string {
	return s.client.Path()
}

// Close 关闭数据库。通过 Catalog 打开的句柄应由 Catalog.Close 统一关闭。
func (s *SQLiteStore) Close() error {
	return s.client.Close()
}
