package identity

import (
	"sort"

	"github.com/kart-io/qgpt/pkg/errors"
)

// 冲突类型。
const (
	KindDB         = "db"
	KindCollection = "collection"
)

// Collision 多个不同语料库生成了相同的名称。
type Collision struct {
	Kind    string   `json:"kind"`
	Name    string   `json:"name"`
	Corpora []string `json:"corpora"`
}

// DetectCollisions 按数据库名和集合名分组，返回包含两个及以上不同语料库的组。
// 结果按 Kind、Name 排序。
func DetectCollisions(ids []Identity) []Collision {
	byDB := make(map[string][]string)
	byColl := make(map[string][]string)
	for _, id := range ids {
		byDB[id.DBName] = appendUnique(byDB[id.DBName], id.CorpusName)
		byColl[id.CollectionName] = appendUnique(byColl[id.CollectionName], id.CorpusName)
	}

	var out []Collision
	for name, corpora := range byDB {
		if len(corpora) > 1 {
			out = append(out, Collision{Kind: KindDB, Name: name, Corpora: corpora})
		}
	}
	for name, corpora := range byColl {
		if len(corpora) > 1 {
			out = append(out, Collision{Kind: KindCollection, Name: name, Corpora: corpora})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Registry 记录已占用的名称，后到的冲突语料库被拒绝。
type Registry struct {
	db   map[string]string
	coll map[string]string
}

// NewRegistry 创建空的名称登记表。
func NewRegistry() *Registry {
	return &Registry{
		db:   make(map[string]string),
		coll: make(map[string]string),
	}
}

// Claim 登记标识。名称已被其他语料库占用时返回 ErrIdentityCollision，
// 同一语料库重复登记不算冲突。
func (r *Registry) Claim(id Identity) error {
	if owner, ok := r.db[id.DBName]; ok && owner != id.CorpusName {
		return errors.ErrIdentityCollision.WithMessagef(
			"corpus %q maps to database %q already used by %q", id.CorpusName, id.DBName, owner)
	}
	if owner, ok := r.coll[id.CollectionName]; ok && owner != id.CorpusName {
		return errors.ErrIdentityCollision.WithMessagef(
			"corpus %q maps to collection %q already used by %q", id.CorpusName, id.CollectionName, owner)
	}
	r.db[id.DBName] = id.CorpusName
	r.coll[id.CollectionName] = id.CorpusName
	return nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
