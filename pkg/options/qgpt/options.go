// Package qgpt provides the table retrieval pipeline options.
package qgpt

import (
	"fmt"

	"github.com/kart-io/qgpt/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMilvus = "milvus"
)

// Options contains pipeline configuration.
type Options struct {
	// CorpusDir is the directory scanned for corpus JSON files.
	CorpusDir string `json:"corpus-dir" mapstructure:"corpus-dir"`

	// CorpusRoot is the path segment after which corpus names are built.
	CorpusRoot string `json:"corpus-root" mapstructure:"corpus-root"`

	// TestDir holds test query / ground truth files.
	TestDir string `json:"test-dir" mapstructure:"test-dir"`

	// DBDir holds the per-corpus database files of the sqlite backend.
	DBDir string `json:"db-dir" mapstructure:"db-dir"`

	// OutputDir receives evaluation result files.
	OutputDir string `json:"output-dir" mapstructure:"output-dir"`

	// Store selects the vector store backend (sqlite, milvus).
	Store string `json:"store" mapstructure:"store"`

	// Metric is the distance metric of new collections (COSINE, L2, IP).
	Metric string `json:"metric" mapstructure:"metric"`

	// EmbeddingDim is the dimension of embedding vectors.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// EmbedBatchSize bounds how many documents are encoded per request.
	EmbedBatchSize int `json:"embed-batch-size" mapstructure:"embed-batch-size"`

	// InsertBatchSize bounds how many entries are written per insert call.
	InsertBatchSize int `json:"insert-batch-size" mapstructure:"insert-batch-size"`

	// MaxTokens truncates encoder input; 0 disables truncation.
	MaxTokens int `json:"max-tokens" mapstructure:"max-tokens"`

	// MaxTextLength truncates the stored text of each entry.
	MaxTextLength int `json:"max-text-length" mapstructure:"max-text-length"`

	// TopK is the default number of results per search.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// Workers is the number of test files evaluated concurrently in batch mode.
	Workers int `json:"workers" mapstructure:"workers"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		CorpusDir:       "Corpora",
		CorpusRoot:      "Corpora",
		TestDir:         "Test_Query_and_GroundTruth_Table",
		DBDir:           ".",
		OutputDir:       ".",
		Store:           StoreSQLite,
		Metric:          "COSINE",
		EmbeddingDim:    1024,
		EmbedBatchSize:  1000,
		InsertBatchSize: 1000,
		MaxTokens:       8192,
		MaxTextLength:   8192,
		TopK:            5,
		Workers:         1,
	}
}

// AddFlags adds flags for pipeline options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "qgpt."
	fs.StringVar(&o.CorpusDir, p+"corpus-dir", o.CorpusDir, "Directory scanned for corpus JSON files.")
	fs.StringVar(&o.CorpusRoot, p+"corpus-root", o.CorpusRoot, "Path segment after which corpus names are built.")
	fs.StringVar(&o.TestDir, p+"test-dir", o.TestDir, "Directory of test query / ground truth files.")
	fs.StringVar(&o.DBDir, p+"db-dir", o.DBDir, "Directory of per-corpus database files (sqlite store).")
	fs.StringVar(&o.OutputDir, p+"output-dir", o.OutputDir, "Directory receiving evaluation results.")
	fs.StringVar(&o.Store, p+"store", o.Store, "Vector store backend (sqlite, milvus).")
	fs.StringVar(&o.Metric, p+"metric", o.Metric, "Distance metric for new collections (COSINE, L2, IP).")
	fs.IntVar(&o.EmbeddingDim, p+"embedding-dim", o.EmbeddingDim, "Embedding vector dimension.")
	fs.IntVar(&o.EmbedBatchSize, p+"embed-batch-size", o.EmbedBatchSize, "Documents encoded per embedding request.")
	fs.IntVar(&o.InsertBatchSize, p+"insert-batch-size", o.InsertBatchSize, "Entries written per insert call.")
	fs.IntVar(&o.MaxTokens, p+"max-tokens", o.MaxTokens, "Maximum encoder input length, 0 for no limit.")
	fs.IntVar(&o.MaxTextLength, p+"max-text-length", o.MaxTextLength, "Maximum stored text length per entry.")
	fs.IntVar(&o.TopK, p+"top-k", o.TopK, "Default number of search results.")
	fs.IntVar(&o.Workers, p+"workers", o.Workers, "Test files evaluated concurrently in batch mode.")
}

// Validate validates the pipeline options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Store {
	case StoreSQLite, StoreMilvus:
	default:
		errs = append(errs, fmt.Errorf("qgpt.store must be one of sqlite, milvus, got %q", o.Store))
	}
	switch o.Metric {
	case "COSINE", "L2", "IP":
	default:
		errs = append(errs, fmt.Errorf("qgpt.metric must be one of COSINE, L2, IP, got %q", o.Metric))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("qgpt.embedding-dim must be positive"))
	}
	if o.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("qgpt.embed-batch-size must be positive"))
	}
	if o.InsertBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("qgpt.insert-batch-size must be positive"))
	}
	if o.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("qgpt.max-tokens must not be negative"))
	}
	if o.MaxTextLength <= 0 {
		errs = append(errs, fmt.Errorf("qgpt.max-text-length must be positive"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("qgpt.top-k must be positive"))
	}
	if o.Workers <= 0 {
		errs = append(errs, fmt.Errorf("qgpt.workers must be positive"))
	}
	return errs
}

// Complete fills derived defaults.
func (o *Options) Complete() error {
	if o.CorpusRoot == "" {
		o.CorpusRoot = "Corpora"
	}
	if o.DBDir == "" {
		o.DBDir = "."
	}
	if o.OutputDir == "" {
		o.OutputDir = "."
	}
	return nil
}
