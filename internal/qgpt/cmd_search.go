package qgpt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kart-io/logger"
	"github.com/spf13/cobra"

	"github.com/kart-io/qgpt/internal/pkg/evaluator"
	"github.com/kart-io/qgpt/internal/qgpt/batch"
	"github.com/kart-io/qgpt/internal/qgpt/biz"
	"github.com/kart-io/qgpt/internal/qgpt/format"
	"github.com/kart-io/qgpt/pkg/errors"
	"github.com/kart-io/qgpt/pkg/utils/json"
)

// target 检索目标，db 不能省略。
type target struct {
	db         string
	collection string
	topK       int
}

func (t *target) addFlags(cmd *cobra.Command, defaultTopK int) {
	cmd.Flags().StringVar(&t.db, "db", "", "Database to search, e.g. qgpt_ottqa.db.")
	cmd.Flags().StringVar(&t.collection, "collection", "", "Collection name, derived from --db when empty.")
	cmd.Flags().IntVarP(&t.topK, "top-k", "k", defaultTopK, "Number of results, 0 uses qgpt.top-k.")
}

func (t *target) k(opts *Options) int {
	if t.topK > 0 {
		return t.topK
	}
	return opts.QGPT.TopK
}

func (t *target) open(cmd *cobra.Command, c *components) (*biz.Searcher, error) {
	if t.db == "" {
		return nil, errors.ErrAmbiguousTarget.WithMessage("--db is required")
	}
	return biz.OpenSearcher(cmd.Context(), c.catalog, c.embedder, t.db, t.collection)
}

func newSearchCommand(opts *Options) *cobra.Command {
	var (
		t     target
		style string
	)

	cmd := &cobra.Command{
		Use:     "search <query>",
		Short:   "Search a corpus index",
		Example: `  qgpt search "which team won in 2004" --db qgpt_ottqa.db --top-k 10 --format simple`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := format.ParseStyle(style)
			if err != nil {
				return err
			}

			c, err := newComponents(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer c.Close()

			searcher, err := t.open(cmd, c)
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			results, err := searcher.Search(cmd.Context(), query, t.k(opts), nil)
			if err != nil {
				return err
			}
			out, err := format.Render(results, query, s)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	t.addFlags(cmd, 0)
	cmd.Flags().StringVar(&style, "format", string(format.StyleDetailed), "Output format (detailed, simple, json).")
	return cmd
}

func newEvaluateCommand(opts *Options) *cobra.Command {
	var (
		t           target
		groundTruth []string
		testFile    string
		runBatch    bool
		save        bool
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "evaluate [query]",
		Short: "Evaluate retrieval for a query, a test file or every test file",
		Example: `  qgpt evaluate "population of paris" --db qgpt_ottqa.db --ground-truth a.csv,b.csv
  qgpt evaluate --test-file Test_Query_and_GroundTruth_Table/OTT-QA.json --db qgpt_ottqa.db --save
  qgpt evaluate --batch --save --workers 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modes := 0
			for _, on := range []bool{len(args) > 0, testFile != "", runBatch} {
				if on {
					modes++
				}
			}
			if modes != 1 {
				return errors.ErrQGPTConfig.WithMessage("give exactly one of <query>, --test-file or --batch")
			}

			c, err := newComponents(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer c.Close()

			switch {
			case runBatch:
				return evaluateBatch(cmd, c, t.k(opts), workers, save)
			case testFile != "":
				return evaluateTestFile(cmd, c, &t, testFile, save)
			default:
				return evaluateQuery(cmd, c, &t, strings.Join(args, " "), groundTruth)
			}
		},
	}

	t.addFlags(cmd, 0)
	cmd.Flags().StringSliceVar(&groundTruth, "ground-truth", nil, "Ground truth table files, comma separated.")
	cmd.Flags().StringVar(&testFile, "test-file", "", "Evaluate every query of a test file.")
	cmd.Flags().BoolVar(&runBatch, "batch", false, "Evaluate every test file under qgpt.test-dir.")
	cmd.Flags().BoolVar(&save, "save", false, "Write evaluation results to qgpt.output-dir.")
	cmd.Flags().IntVar(&workers, "workers", 0, "Test files evaluated concurrently, defaults to qgpt.workers.")
	return cmd
}

func evaluateQuery(cmd *cobra.Command, c *components, t *target, query string, groundTruth []string) error {
	searcher, err := t.open(cmd, c)
	if err != nil {
		return err
	}
	results, err := searcher.Search(cmd.Context(), query, t.k(c.opts), nil)
	if err != nil {
		return err
	}
	return printJSON(cmd, evaluator.EvaluateQuery(query, results, groundTruth))
}

// evaluateTestFile 未指定 --db 时按映射规则查找已构建的语料库。
// --collection 只能与 --db 一起使用。
func evaluateTestFile(cmd *cobra.Command, c *components, t *target, testFile string, save bool) error {
	if t.collection != "" && t.db == "" {
		return errors.ErrAmbiguousTarget.WithMessage("--collection requires --db")
	}
	e := c.batchEvaluator(0)

	db := t.db
	if db == "" {
		id, ok := e.MatchCorpusToTest(cmd.Context(), testFile)
		if !ok {
			return errors.ErrAmbiguousTarget.WithMessagef("no built corpus matches %s, give --db", batch.Stem(testFile))
		}
		db = id.DBName
		logger.Infow("matched test file to corpus", "test_file", testFile, "corpus", id.CorpusName, "db", db)
	}

	summary, err := e.EvaluateTestFile(cmd.Context(), testFile, db, t.collection, t.k(c.opts))
	if err != nil {
		return err
	}
	printSummaries(cmd, map[string]*batch.Summary{batch.Stem(testFile): summary})

	if save {
		path, err := e.SaveSummary(summary)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "results saved to %s\n", path)
	}
	return nil
}

func evaluateBatch(cmd *cobra.Command, c *components, k, workers int, save bool) error {
	results, err := c.batchEvaluator(workers).RunBatch(cmd.Context(), k, save)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no test files were evaluated")
		return nil
	}
	printSummaries(cmd, results)
	return nil
}

func printSummaries(cmd *cobra.Command, results map[string]*batch.Summary) {
	stems := make([]string, 0, len(results))
	for stem := range results {
		stems = append(stems, stem)
	}
	sort.Strings(stems)

	rows := make([][]string, 0, len(stems))
	for _, stem := range stems {
		s := results[stem]
		rows = append(rows, []string{
			stem,
			s.DBPath,
			fmt.Sprintf("%d", s.TotalQueries),
			fmt.Sprintf("%.4f", s.AvgRecallAtK),
			fmt.Sprintf("%.4f", s.AvgPrecisionAtK),
		})
	}
	k := results[stems[0]].K
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"test file", "database", "queries", fmt.Sprintf("recall@%d", k), fmt.Sprintf("precision@%d", k)},
		rows, -1))
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
