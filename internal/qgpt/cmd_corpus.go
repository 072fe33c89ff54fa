package qgpt

import (
	"fmt"
	"strconv"

	"github.com/kart-io/logger"
	"github.com/spf13/cobra"

	"github.com/kart-io/qgpt/internal/qgpt/biz"
	"github.com/kart-io/qgpt/internal/qgpt/corpus"
	"github.com/kart-io/qgpt/internal/qgpt/identity"
	"github.com/kart-io/qgpt/internal/qgpt/store"
	"github.com/kart-io/qgpt/pkg/errors"
)

func newListCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered corpora and their index names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			catalog, err := newCatalog(opts)
			if err != nil {
				return err
			}
			defer catalog.Close()

			files, err := corpus.Discover(opts.QGPT.CorpusDir, identity.NewResolver(opts.QGPT.CorpusRoot))
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no corpus files under %s\n", opts.QGPT.CorpusDir)
				return nil
			}

			collided := make(map[string]bool)
			for _, c := range identity.DetectCollisions(corpus.Identities(files)) {
				for _, name := range c.Corpora {
					collided[name] = true
				}
			}

			rows := make([][]string, 0, len(files))
			for _, f := range files {
				status := statusMissing
				if ok, err := catalog.Exists(ctx, f.DBName); err != nil {
					return err
				} else if ok {
					status = statusBuilt
				}
				if collided[f.CorpusName] {
					status = "collision"
				}
				rows = append(rows, []string{f.CorpusName, f.DBName, f.CollectionName, status})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"corpus", "database", "collection", "status"}, rows, 3))
			return nil
		},
	}
}

func newListDBsCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list-dbs",
		Short: "List built databases and their collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			catalog, err := newCatalog(opts)
			if err != nil {
				return err
			}
			defer catalog.Close()

			names, err := catalog.List(ctx)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no databases found (%s)\n", catalog.Name())
				return nil
			}

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rows = append(rows, describeDB(cmd, catalog, name)...)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"database", "collection", "entities", "metric"}, rows, -1))
			return nil
		},
	}
}

func describeDB(cmd *cobra.Command, catalog store.Catalog, name string) [][]string {
	ctx := cmd.Context()
	s, err := catalog.Open(ctx, name, false)
	if err != nil {
		logger.Warnw("failed to open database", "db", name, "error", err)
		return [][]string{{name, "-", "-", "-"}}
	}
	collections, err := s.ListCollections(ctx)
	if err != nil || len(collections) == 0 {
		return [][]string{{name, "-", "-", "-"}}
	}

	rows := make([][]string, 0, len(collections))
	for _, c := range collections {
		count, metric := "-", "-"
		if n, err := s.Count(ctx, c); err == nil {
			count = strconv.FormatInt(n, 10)
		}
		if m, err := s.Metric(ctx, c); err == nil {
			metric = string(m)
		}
		rows = append(rows, []string{name, c, count, metric})
	}
	return rows
}

func newBuildCommand(opts *Options) *cobra.Command {
	var (
		all   bool
		force bool
		dim   int
	)

	cmd := &cobra.Command{
		Use:   "build [corpus.json...]",
		Short: "Embed corpora and build their vector indexes",
		Example: `  qgpt build Corpora/Table7_OTTQA/ottqa.json
  qgpt build --all --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.ErrQGPTConfig.WithMessage("give corpus files or --all")
			}

			if dim > 0 {
				opts.QGPT.EmbeddingDim = dim
			}

			ctx := cmd.Context()
			c, err := newComponents(ctx, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			indexer := c.indexer()

			if all {
				reports, err := indexer.BuildAll(ctx, force)
				if err != nil {
					return err
				}
				printBuildSummary(cmd, reports)
				if n := countFailed(reports); n > 0 {
					return fmt.Errorf("%d of %d corpora failed", n, len(reports))
				}
				return nil
			}

			var failed int
			for _, path := range args {
				report, err := indexer.Build(ctx, path, force)
				fmt.Fprintln(cmd.OutOrStdout(), report.String())
				if err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d corpora failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Build every corpus under the corpus directory.")
	cmd.Flags().BoolVar(&force, "force", false, "Drop and rebuild existing collections.")
	cmd.Flags().IntVar(&dim, "dim", 0, "Embedding dimension, overrides qgpt.embedding-dim.")
	return cmd
}

func printBuildSummary(cmd *cobra.Command, reports []biz.BuildReport) {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		status, detail := statusOK, strconv.Itoa(r.Inserted)
		switch {
		case r.Err != nil:
			status, detail = statusFail, r.Err.Error()
		case r.Skipped:
			status, detail = statusSkip, "exists"
		}
		rows = append(rows, []string{r.CorpusName, r.DBName, status, detail})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"corpus", "database", "status", "inserted"}, rows, 2))
}

func countFailed(reports []biz.BuildReport) int {
	n := 0
	for _, r := range reports {
		if !r.Succeeded() {
			n++
		}
	}
	return n
}
