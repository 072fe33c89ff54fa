// Package identity 将语料库文件路径映射为确定性的数据库名与集合名。
//
// 命名规则：
//   - 语料库名：路径中根目录段（默认 Corpora）之后的所有段以 "_" 连接，末段去掉扩展名；
//     不在根目录下时取文件名（不含扩展名）。
//   - 数据库名 qgpt_<name>.db，集合名 emb_<name>，先替换分隔符再按顺序套用缩写表。
//   - 超过 35 字符时去掉下划线并截断。
package identity

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kart-io/qgpt/pkg/errors"
)

const (
	// DefaultRoot 默认语料库根目录段。
	DefaultRoot = "Corpora"

	// MaxNameLength 存储后端允许的最大名称长度。
	MaxNameLength = 36

	// DBPrefix 数据库名前缀。
	DBPrefix = "qgpt_"
	// DBSuffix 数据库名后缀。
	DBSuffix = ".db"
	// CollectionPrefix 集合名前缀。
	CollectionPrefix = "emb_"

	shortenThreshold   = 35
	dbShortLength      = 25
	collectShortLength = 30
)

// Abbreviation 缩写规则。
type Abbreviation struct {
	Pattern     string
	Replacement string
}

// Abbreviations 按顺序套用的缩写表。
var Abbreviations = []Abbreviation{
	{Pattern: "Table", Replacement: "T"},
	{Pattern: "mimo_table_length_variation", Replacement: "MTLV"},
	{Pattern: "Single_Table_Retrieval", Replacement: "STR"},
	{Pattern: "Multi_Table_Retrieval", Replacement: "MTR"},
	{Pattern: "table_representation", Replacement: "TR"},
}

// Identity 语料库在存储层的标识。
type Identity struct {
	CorpusName     string `json:"name"`
	DBName         string `json:"db_name"`
	CollectionName string `json:"collection_name"`
}

// Resolver 根据根目录段解析语料库标识。
type Resolver struct {
	root string
}

// NewResolver 创建解析器，root 为空时使用 DefaultRoot。
func NewResolver(root string) *Resolver {
	if root == "" {
		root = DefaultRoot
	}
	return &Resolver{root: root}
}

// Root 返回根目录段。
func (r *Resolver) Root() string {
	return r.root
}

// Resolve 解析路径对应的标识，纯函数。
func (r *Resolver) Resolve(p string) Identity {
	name := r.CorpusName(p)
	return Identity{
		CorpusName:     name,
		DBName:         DBName(name),
		CollectionName: CollectionName(name),
	}
}

// CorpusName 从路径提取语料库名。
func (r *Resolver) CorpusName(p string) string {
	parts := splitPath(p)
	for i, part := range parts {
		if part != r.root {
			continue
		}
		rest := append([]string(nil), parts[i+1:]...)
		if len(rest) > 0 {
			rest[len(rest)-1] = stem(rest[len(rest)-1])
		}
		return strings.Join(rest, "_")
	}
	if len(parts) == 0 {
		return ""
	}
	return stem(parts[len(parts)-1])
}

// Resolve 使用默认根目录解析路径。
func Resolve(p string) Identity {
	return NewResolver(DefaultRoot).Resolve(p)
}

// DBName 生成数据库名。
func DBName(corpus string) string {
	clean := clean(corpus)
	name := DBPrefix + clean + DBSuffix
	if utf8.RuneCountInString(name) > shortenThreshold {
		name = DBPrefix + shorten(clean, dbShortLength) + DBSuffix
	}
	return name
}

// CollectionName 生成集合名。
func CollectionName(corpus string) string {
	clean := clean(corpus)
	name := CollectionPrefix + clean
	if utf8.RuneCountInString(name) > shortenThreshold {
		name = CollectionPrefix + shorten(clean, collectShortLength)
	}
	return name
}

// CorpusFromDBName 由数据库文件名反推缩写后的语料库名，
// 未显式指定集合时用它推导集合名。
func CorpusFromDBName(dbName string) string {
	base := filepath.Base(filepath.ToSlash(dbName))
	if base == "." || base == "/" {
		return ""
	}
	base = strings.TrimSuffix(base, DBSuffix)
	return strings.TrimPrefix(base, DBPrefix)
}

// CollectionForDB 返回数据库默认对应的集合名。
func CollectionForDB(dbName string) string {
	return CollectionPrefix + CorpusFromDBName(dbName)
}

// Validate 检查名称长度是否符合存储限制。
func Validate(id Identity) error {
	if n := utf8.RuneCountInString(id.DBName); n > MaxNameLength {
		return errors.ErrIdentityTooLong.WithMessagef("database name %q has %d characters, limit %d", id.DBName, n, MaxNameLength)
	}
	if n := utf8.RuneCountInString(id.CollectionName); n > MaxNameLength {
		return errors.ErrIdentityTooLong.WithMessagef("collection name %q has %d characters, limit %d", id.CollectionName, n, MaxNameLength)
	}
	return nil
}

func clean(corpus string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(corpus)
	for _, a := range Abbreviations {
		name = strings.ReplaceAll(name, a.Pattern, a.Replacement)
	}
	return name
}

func shorten(name string, n int) string {
	name = strings.ReplaceAll(name, "_", "")
	runes := []rune(name)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}

func splitPath(p string) []string {
	p = filepath.ToSlash(p)
	var parts []string
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." {
			continue
		}
		parts = append(parts, seg)
	}
	return parts
}

// stem 去掉最后一个扩展名，隐藏文件名保持不变。
func stem(name string) string {
	ext := path.Ext(name)
	if ext == name {
		return name
	}
	return strings.TrimSuffix(name, ext)
}

// String 实现 fmt.Stringer。
func (id Identity) String() string {
	return fmt.Sprintf("%s (db=%s, collection=%s)", id.CorpusName, id.DBName, id.CollectionName)
}
