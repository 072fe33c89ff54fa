package redis

import (
	"encoding/json"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalJSONRedactsPassword(t *testing.T) {
	opts := NewOptions()
	opts.Password = "supersecret"

	data, err := json.Marshal(opts)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "supersecret")
	assert.Contains(t, string(data), redactedPassword)
	assert.NotContains(t, opts.String(), "supersecret")

	opts.Password = ""
	data, err = json.Marshal(opts)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"password":""`)
}

func TestValidateOnlyWhenEnabled(t *testing.T) {
	opts := NewOptions()
	opts.Host = ""
	assert.Empty(t, opts.Validate())

	opts.Enabled = true
	assert.Len(t, opts.Validate(), 1)
}

func TestAddFlagsWithPrefix(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs, "cache")

	require.NoError(t, fs.Parse([]string{"--cache.redis.enabled", "--cache.redis.port=6380"}))
	assert.True(t, opts.Enabled)
	assert.Equal(t, "127.0.0.1:6380", opts.Addr())
}
