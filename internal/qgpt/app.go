// Package qgpt 表格检索评估流水线的命令行应用。
package qgpt

import (
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/qgpt/pkg/infra/app"
)

const (
	appName        = "qgpt"
	appDescription = `QGpT table retrieval pipeline

Builds one vector index per table corpus and evaluates retrieval quality
against ground-truth tables.

Commands:
  - list / list-dbs: inspect corpora and built databases
  - build: embed corpus records and write them to the vector store
  - search / evaluate: query an index and score the results
  - dump / recall: export raw retrieval results and compute Recall@k
  - serve: expose search and evaluation over HTTP`
)

// NewApp 创建 qgpt 命令行应用。
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(appName),
		app.WithShortDescription("QGpT table retrieval index builder and evaluator"),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithInitFunc(func() error {
			return initLogger(opts)
		}),
		app.WithCommands(
			newListCommand(opts),
			newListDBsCommand(opts),
			newBuildCommand(opts),
			newSearchCommand(opts),
			newEvaluateCommand(opts),
			newDumpCommand(opts),
			newRecallCommand(opts),
			newServeCommand(opts),
		),
	)
}

func initLogger(opts *Options) error {
	opts.Log.AddInitialField("service.name", appName)
	opts.Log.AddInitialField("service.version", app.GetVersion())
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Debugw("qgpt configured", "store", opts.QGPT.Store, "provider", opts.Embedding.Provider, "model", opts.Embedding.Model)
	return nil
}
