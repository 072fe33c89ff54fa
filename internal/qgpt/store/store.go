package store

import (
	"context"
	"fmt"
	"strings"
)

// Metric 距离度量。
type Metric string

// 支持的度量。COSINE 距离为 1-cos，L2 为平方欧氏距离，IP 距离为 1-内积。
const (
	MetricCosine Metric = "COSINE"
	MetricL2     Metric = "L2"
	MetricIP     Metric = "IP"
)

// ParseMetric 解析度量名称，大小写不敏感。
func ParseMetric(name string) (Metric, error) {
	switch m := Metric(strings.ToUpper(name)); m {
	case MetricCosine, MetricL2, MetricIP:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported metric %q", name)
	}
}

// Bounded 报告 1-distance 是否落在 [0,1] 区间内可视为相似度。
func (m Metric) Bounded() bool {
	return m == MetricCosine
}

// 可输出的实体字段。
const (
	FieldText       = "text"
	FieldOriginalID = "original_id"
	FieldFileName   = "filename"
	FieldSheetName  = "sheet_name"
)

// DefaultFields 搜索时默认返回的字段。
var DefaultFields = []string{FieldText, FieldOriginalID, FieldFileName, FieldSheetName}

// Entry 写入集合的一条记录。
type Entry struct {
	// LocalID 记录在语料中的位置，从 0 开始。
	LocalID    int64
	Vector     []float32
	Text       string
	OriginalID string
	FileName   string
	SheetName  string
}

// Field 按字段名取值。
func (e *Entry) Field(name string) string {
	switch name {
	case FieldText:
		return e.Text
	case FieldOriginalID:
		return e.OriginalID
	case FieldFileName:
		return e.FileName
	case FieldSheetName:
		return e.SheetName
	default:
		return ""
	}
}

// Hit 一条近邻结果，按 Distance 升序排列。
type Hit struct {
	ID       int64
	Distance float32
	Fields   map[string]string
}

// VectorStore 单个数据库内的集合操作。
type VectorStore interface {
	// HasCollection 判断集合是否存在。
	HasCollection(ctx context.Context, name string) (bool, error)

	// CreateCollection 创建集合。
	CreateCollection(ctx context.Context, name string, dim int, metric Metric) error

	// DropCollection 删除集合及其全部记录。
	DropCollection(ctx context.Context, name string) error

	// Insert 写入一批记录，返回写入条数。
	Insert(ctx context.Context, name string, entries []Entry) (int, error)

	// Search 返回距离最近的 k 条记录，fields 为需要输出的字段。
	Search(ctx context.Context, name string, vector []float32, k int, fields []string) ([]Hit, error)

	// Count 返回集合记录数。
	Count(ctx context.Context, name string) (int64, error)

	// Metric 返回集合的距离度量。
	Metric(ctx context.Context, name string) (Metric, error)

	// ListCollections 列出数据库中的集合。
	ListCollections(ctx context.Context) ([]string, error)

	// Close 关闭连接。
	Close() error
}

// Catalog 管理按语料划分的数据库，每个数据库在一次运行中只打开一次。
type Catalog interface {
	// Name 返回后端名称。
	Name() string

	// Exists 判断数据库是否存在。
	Exists(ctx context.Context, dbName string) (bool, error)

	// List 列出已有数据库，按名称排序。
	List(ctx context.Context) ([]string, error)

	// Open 打开数据库。create 为 false 且数据库不存在时返回 ErrDatabaseNotFound。
	Open(ctx context.Context, dbName string, create bool) (VectorStore, error)

	// Close 关闭所有已打开的数据库。
	Close() error
}
