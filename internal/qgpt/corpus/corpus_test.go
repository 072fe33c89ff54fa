package corpus_test

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/qgpt/internal/qgpt/corpus"
	"github.com/kart-io/qgpt/internal/qgpt/identity"
	"github.com/kart-io/qgpt/pkg/errors"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func raw(items ...string) []corpus.RawRecord {
	out := make([]corpus.RawRecord, len(items))
	for i, s := range items {
		out[i] = corpus.RawRecord(s)
	}
	return out
}

func TestPreprocessText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a   b | nan | c", "a b |  | c"},
		{"  leading\tand\ntrailing  ", "leading and trailing"},
		{"| nan | nan |", "|  | nan |"},
		{"a |\tnan\t| b", "a | nan | b"},
		{"a |\nnan | b", "a | nan | b"},
		{"a |  nan  | b", "a | nan | b"},
		{"x | nan |y", "x |  |y"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, corpus.PreprocessText(tt.in), tt.in)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  []corpus.RawRecord
		want bool
	}{
		{"empty list", nil, false},
		{"well formed", raw(`{"id": 1, "Text": "t"}`, `{"id": "a", "Text": "u", "FileName": null}`), true},
		{"empty text", raw(`{"id": 1, "Text": "t"}`, `{"id": "a", "Text": ""}`), false},
		{"blank text", raw(`{"id": 1, "Text": "   "}`), false},
		{"null text", raw(`{"id": 1, "Text": null}`), false},
		{"text not a string", raw(`{"id": 1, "Text": 7}`), false},
		{"missing id", raw(`{"Text": "t"}`), false},
		{"missing text", raw(`{"id": 1}`), false},
		{"missing both in second record", raw(`{"id": 1, "Text": "t"}`, `{"FileName": "f"}`), false},
		{"not an object", raw(`{"id": 1, "Text": "t"}`, `[1, 2]`), false},
		{"case sensitive keys", raw(`{"ID": 1, "text": "t"}`), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, corpus.Validate(tt.raw))
		})
	}
}

func TestToRecords(t *testing.T) {
	records, err := corpus.ToRecords(raw(
		`{"id": 42, "Text": "row", "FileName": "t1.csv", "SheetName": "Sheet1"}`,
		`{"id": "abc", "Text": "row2", "FileName": null}`,
	))
	require.NoError(t, err)
	assert.Equal(t, []corpus.Record{
		{ID: "42", Text: "row", FileName: "t1.csv", SheetName: "Sheet1"},
		{ID: "abc", Text: "row2"},
	}, records)

	_, err = corpus.ToRecords(raw(`{"id": true, "Text": "x"}`))
	assert.True(t, stderrors.Is(err, errors.ErrCorpusInvalid))

	_, err = corpus.ToRecords(raw(`{"id": 1, "Text": 3}`))
	assert.True(t, stderrors.Is(err, errors.ErrCorpusInvalid))
}

func TestLoadAndValidate(t *testing.T) {
	dir := t.TempDir()

	good := writeFile(t, filepath.Join(dir, "good.json"),
		`[{"id": 0, "Text": "a | nan | b"}, {"id": 1, "Text": "c", "FileName": "f.csv"}]`)
	records, err := corpus.LoadAndValidate(good)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "0", records[0].ID)
	assert.Equal(t, "f.csv", records[1].FileName)

	bad := writeFile(t, filepath.Join(dir, "bad.json"), `[{"id": 0, "Text": "a"}, {"Text": "b"}]`)
	_, err = corpus.LoadAndValidate(bad)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrCorpusInvalid))

	blank := writeFile(t, filepath.Join(dir, "blank.json"), `[{"id": 1, "Text": "   "}, {"id": 2, "Text": ""}]`)
	records, err = corpus.LoadAndValidate(blank)
	assert.Nil(t, records)
	assert.True(t, stderrors.Is(err, errors.ErrCorpusInvalid), "blank text never reaches the index")

	empty := writeFile(t, filepath.Join(dir, "empty.json"), `[]`)
	_, err = corpus.LoadAndValidate(empty)
	assert.True(t, stderrors.Is(err, errors.ErrCorpusInvalid))

	_, err = corpus.LoadAndValidate(filepath.Join(dir, "missing.json"))
	assert.True(t, stderrors.Is(err, errors.ErrCorpusInvalid))
}

func TestDiscover(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Corpora")
	writeFile(t, filepath.Join(root, "Table7_OTTQA", "ottqa.json"), `[]`)
	writeFile(t, filepath.Join(root, "Table1_mimo_table_length_variation", "mimo_en.json"), `[]`)
	writeFile(t, filepath.Join(root, "notes.txt"), `x`)

	files, err := corpus.Discover(root, nil)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "Table1_mimo_table_length_variation_mimo_en", files[0].CorpusName)
	assert.Equal(t, "qgpt_T1_MTLV_mimo_en.db", files[0].DBName)
	assert.Equal(t, "emb_T7_OTTQA_ottqa", files[1].CollectionName)

	ids := corpus.Identities(files)
	assert.Equal(t, []identity.Identity{files[0].Identity, files[1].Identity}, ids)

	missing, err := corpus.Discover(filepath.Join(root, "nope"), nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
}
