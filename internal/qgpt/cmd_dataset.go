package qgpt

import (
	"fmt"

	"github.com/kart-io/logger"
	"github.com/spf13/cobra"

	"github.com/kart-io/qgpt/internal/pkg/evaluator"
	"github.com/kart-io/qgpt/internal/qgpt/batch"
	"github.com/kart-io/qgpt/pkg/errors"
	"github.com/kart-io/qgpt/pkg/utils/json"
)

const datasetIndent = 4

func newDumpCommand(opts *Options) *cobra.Command {
	var (
		t        target
		testFile string
		output   string
	)

	cmd := &cobra.Command{
		Use:     "dump",
		Short:   "Search every query of a test dataset and write the raw hits",
		Example: `  qgpt dump --test-file test.json --db qgpt_ottqa.db --output search_results.json --top-k 10`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if testFile == "" || output == "" {
				return errors.ErrQGPTConfig.WithMessage("--test-file and --output are required")
			}
			cases, err := batch.LoadTestCases(testFile)
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
			logger.Infow("dumping search results", "test_file", testFile, "queries", len(cases), "db", searcher.DBName(), "top_k", t.k(opts))

			records, err := batch.Dump(cmd.Context(), searcher, cases, t.k(opts))
			if err != nil {
				return err
			}
			if err := json.WriteFile(output, records, datasetIndent); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d queries written to %s\n", len(records), output)
			return nil
		},
	}

	t.addFlags(cmd, 10)
	cmd.Flags().StringVar(&testFile, "test-file", "", "Test dataset with query / Answer_table fields.")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file for the search results.")
	return cmd
}

func newRecallCommand(_ *Options) *cobra.Command {
	var (
		results  string
		testFile string
		output   string
		ks       []int
	)

	cmd := &cobra.Command{
		Use:     "recall",
		Short:   "Compute the Recall@k curve from dumped search results",
		Example: `  qgpt recall --results search_results.json --test-file test.json --output recall.json --k 1,3,5,10`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if results == "" || testFile == "" {
				return errors.ErrQGPTConfig.WithMessage("--results and --test-file are required")
			}
			records, err := batch.LoadDump(results)
			if err != nil {
				return err
			}
			cases, err := batch.LoadTestCases(testFile)
			if err != nil {
				return err
			}

			curve, err := batch.RecallFromDump(records, cases, ks)
			if err != nil {
				return err
			}
			if output == "" {
				return printJSON(cmd, curve)
			}
			if err := json.WriteFile(output, curve, datasetIndent); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "average Recall@k %s, written to %s\n", curve.Average, output)
			return nil
		},
	}

	cmd.Flags().StringVar(&results, "results", "", "Search result file written by dump.")
	cmd.Flags().StringVar(&testFile, "test-file", "", "Test dataset with query / Answer_table fields.")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file for the recall curve, stdout when empty.")
	cmd.Flags().IntSliceVar(&ks, "k", evaluator.DefaultKs, "Cutoffs of the recall curve.")
	return cmd
}
