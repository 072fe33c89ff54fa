package identity_test

import (
	stderrors "errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/qgpt/internal/qgpt/identity"
	"github.com/kart-io/qgpt/pkg/errors"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		path string
		want identity.Identity
	}{
		{
			name: "under corpora root",
			path: "Corpora/Table1_mimo_table_length_variation/mimo_en.json",
			want: identity.Identity{
				CorpusName:     "Table1_mimo_table_length_variation_mimo_en",
				DBName:         "qgpt_T1_MTLV_mimo_en.db",
				CollectionName: "emb_T1_MTLV_mimo_en",
			},
		},
		{
			name: "absolute path with root in the middle",
			path: "/data/qgpt/Corpora/Table7_OTTQA/ottqa.json",
			want: identity.Identity{
				CorpusName:     "Table7_OTTQA_ottqa",
				DBName:         "qgpt_T7_OTTQA_ottqa.db",
				CollectionName: "emb_T7_OTTQA_ottqa",
			},
		},
		{
			name: "outside root uses stem",
			path: "data/my table.json",
			want: identity.Identity{
				CorpusName:     "my table",
				DBName:         "qgpt_my_table.db",
				CollectionName: "emb_my_table",
			},
		},
		{
			name: "table abbreviation applied first",
			path: "Corpora/Table6_Multi_Table_Retrieval_3_tables.json",
			want: identity.Identity{
				CorpusName:     "Table6_Multi_Table_Retrieval_3_tables",
				DBName:         "qgpt_T6MultiTRetrieval3tables.db",
				CollectionName: "emb_T6_Multi_T_Retrieval_3_tables",
			},
		},
		{
			name: "long names are shortened",
			path: "abcdefghij_abcdefghij_abcdefghij_abc.json",
			want: identity.Identity{
				CorpusName:     "abcdefghij_abcdefghij_abcdefghij_abc",
				DBName:         "qgpt_abcdefghijabcdefghijabcde.db",
				CollectionName: "emb_abcdefghijabcdefghijabcdefghij",
			},
		},
		{
			name: "empty path",
			path: "",
			want: identity.Identity{DBName: "qgpt_.db", CollectionName: "emb_"},
		},
		{
			name: "hidden file keeps its name",
			path: ".json",
			want: identity.Identity{CorpusName: ".json", DBName: "qgpt_.json.db", CollectionName: "emb_.json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := identity.Resolve(tt.path)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, identity.Resolve(tt.path), "resolve must be pure")
			assert.NoError(t, identity.Validate(got))
		})
	}
}

func TestResolverCustomRoot(t *testing.T) {
	r := identity.NewResolver("datasets")
	assert.Equal(t, "datasets", r.Root())
	assert.Equal(t, "a_b", r.CorpusName("/x/datasets/a/b.json"))
	assert.Equal(t, "Corpora", identity.NewResolver("").Root())
}

func TestGeneratedNamesBounded(t *testing.T) {
	segments := []string{"Table", "Single_Table_Retrieval", "mimo_table_length_variation", "x", "table_representation", "QGpT"}
	for i := 1; i <= 40; i++ {
		name := strings.Repeat(segments[i%len(segments)]+"_", i)
		id := identity.Resolve("Corpora/" + name + ".json")
		assert.LessOrEqual(t, utf8.RuneCountInString(id.DBName), identity.MaxNameLength, id.DBName)
		assert.LessOrEqual(t, utf8.RuneCountInString(id.CollectionName), identity.MaxNameLength, id.CollectionName)
	}
}

func TestValidateTooLong(t *testing.T) {
	err := identity.Validate(identity.Identity{
		DBName:         "qgpt_" + strings.Repeat("x", 40) + ".db",
		CollectionName: "emb_x",
	})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrIdentityTooLong))
}

func TestCorpusFromDBName(t *testing.T) {
	assert.Equal(t, "T1_MTLV_mimo_en", identity.CorpusFromDBName("/var/db/qgpt_T1_MTLV_mimo_en.db"))
	assert.Equal(t, "T1_MTLV_mimo_en", identity.CorpusFromDBName("qgpt_T1_MTLV_mimo_en"))
	assert.Equal(t, "emb_T1_MTLV_mimo_en", identity.CollectionForDB("qgpt_T1_MTLV_mimo_en.db"))

	id := identity.Resolve("Corpora/Table7_OTTQA/ottqa.json")
	assert.Equal(t, id.CollectionName, identity.CollectionForDB(id.DBName))
}

func TestDetectCollisions(t *testing.T) {
	a := identity.Resolve("Corpora/Table1/x.json")
	b := identity.Resolve("Corpora/T1/x.json")
	c := identity.Resolve("Corpora/Table2/y.json")
	require.Equal(t, a.DBName, b.DBName)

	got := identity.DetectCollisions([]identity.Identity{a, b, c, a})
	require.Len(t, got, 2)
	assert.Equal(t, identity.KindCollection, got[0].Kind)
	assert.Equal(t, identity.KindDB, got[1].Kind)
	assert.Equal(t, []string{"Table1_x", "T1_x"}, got[1].Corpora)
}

func TestRegistryClaim(t *testing.T) {
	r := identity.NewRegistry()
	a := identity.Resolve("Corpora/Table1/x.json")
	b := identity.Resolve("Corpora/T1/x.json")

	require.NoError(t, r.Claim(a))
	require.NoError(t, r.Claim(a))

	err := r.Claim(b)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrIdentityCollision))
	assert.Contains(t, err.Error(), "Table1_x")
}
