package qgpt

import (
	"github.com/kart-io/qgpt/pkg/app/cliflag"
	"github.com/kart-io/qgpt/pkg/options"
	httpopts "github.com/kart-io/qgpt/pkg/options/http"
	llmopts "github.com/kart-io/qgpt/pkg/options/llm"
	logopts "github.com/kart-io/qgpt/pkg/options/logger"
	milvusopts "github.com/kart-io/qgpt/pkg/options/milvus"
	qgptopts "github.com/kart-io/qgpt/pkg/options/qgpt"
	redisopts "github.com/kart-io/qgpt/pkg/options/redis"
	sqliteopts "github.com/kart-io/qgpt/pkg/options/sqlite"
)

// Options contains all qgpt options.
type Options struct {
	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// QGPT contains pipeline configuration.
	QGPT *qgptopts.Options `json:"qgpt" mapstructure:"qgpt"`

	// SQLite contains the file-per-database store configuration.
	SQLite *sqliteopts.Options `json:"sqlite" mapstructure:"sqlite"`

	// Milvus contains Milvus server configuration.
	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// Redis contains the embedding cache configuration.
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`

	// Embedding contains embedding provider configuration.
	Embedding *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// HTTP contains the serve command configuration.
	HTTP *httpopts.Options `json:"http" mapstructure:"http"`
}

// NewOptions creates Options with default values.
func NewOptions() *Options {
	return &Options{
		Log:       logopts.NewOptions(),
		QGPT:      qgptopts.NewOptions(),
		SQLite:    sqliteopts.NewOptions(),
		Milvus:    milvusopts.NewOptions(),
		Redis:     redisopts.NewOptions(),
		Embedding: llmopts.NewEmbeddingOptions(),
		HTTP:      httpopts.NewOptions(),
	}
}

// Flags returns flags grouped by section.
func (o *Options) Flags() (fss cliflag.NamedFlagSets) {
	o.QGPT.AddFlags(fss.FlagSet("qgpt"))
	o.Embedding.AddFlags(fss.FlagSet("embedding"))
	o.SQLite.AddFlags(fss.FlagSet("sqlite"))
	o.Milvus.AddFlags(fss.FlagSet("milvus"))
	o.Redis.AddFlags(fss.FlagSet("redis"))
	o.HTTP.AddFlags(fss.FlagSet("http"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

// Complete fills derived defaults of every group.
func (o *Options) Complete() error {
	for _, c := range []interface{ Complete() error }{o.Log, o.QGPT, o.Redis, o.Embedding, o.HTTP} {
		if err := c.Complete(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks every group and aggregates the errors.
func (o *Options) Validate() error {
	opts := []options.IOptions{o.Log, o.QGPT, o.SQLite, o.Embedding, o.Redis, o.HTTP}
	if o.QGPT.Store == qgptopts.StoreMilvus {
		opts = append(opts, o.Milvus)
	}
	return options.ValidateAll(opts...)
}
