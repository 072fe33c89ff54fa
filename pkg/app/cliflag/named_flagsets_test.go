package cliflag_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/qgpt/pkg/app/cliflag"
)

func TestNamedFlagSetsOrder(t *testing.T) {
	var nfs cliflag.NamedFlagSets
	nfs.FlagSet("qgpt").String("qgpt.db-dir", ".", "db dir")
	nfs.FlagSet("log").String("log.level", "info", "level")
	nfs.FlagSet("qgpt").Int("qgpt.top-k", 5, "k")

	assert.Equal(t, []string{"qgpt", "log"}, nfs.Order)
	assert.NotNil(t, nfs.FlagSets["qgpt"].Lookup("qgpt.top-k"))
}

func TestPrintSections(t *testing.T) {
	var nfs cliflag.NamedFlagSets
	nfs.FlagSet("empty")
	nfs.FlagSet("log").String("log.level", "info", "Log level")

	var buf bytes.Buffer
	cliflag.PrintSections(&buf, nfs, 0)

	assert.Contains(t, buf.String(), "Log flags:")
	assert.Contains(t, buf.String(), "--log.level")
	assert.NotContains(t, buf.String(), "Empty flags:")
}
