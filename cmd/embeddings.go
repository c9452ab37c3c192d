package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/embedclear"
)

var (
	embedBatchSize  int
	embedMaxBatches int
	embedCursor     string
	embedAll        bool
	embedFormat     string
)

var embeddingsCmd = &cobra.Command{
	Use:   "embeddings",
	Short: "Maintain lead embedding data",
}

// clearOutput adds the resume token to a clear result.
type clearOutput struct {
	embedclear.Result `yaml:",inline"`
	NextCursor        string `json:"nextCursor,omitempty" yaml:"nextCursor,omitempty"`
}

var embeddingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear embedding fields from leads in bounded batches",
	Long:  "Runs one bounded clear invocation and prints a nextCursor token when work remains. Pass it back with --cursor, or use --all to keep invoking until done.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		cursor, err := embedclear.DecodeCursor(embedCursor)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		total := &embedclear.Result{}
		for {
			res, err := env.Service.ClearEmbeddings(ctx, embedBatchSize, embedMaxBatches, cursor)
			if err != nil {
				return eris.Wrap(err, "clear embeddings")
			}
			total.ClearedCount += res.ClearedCount
			total.ProcessedCount += res.ProcessedCount
			total.ErrorCount += res.ErrorCount
			total.Errors = append(total.Errors, res.Errors...)
			total.HasMore = res.HasMore
			total.Cursor = res.Cursor

			if !embedAll || !res.HasMore {
				break
			}
			cursor = res.Cursor
			zap.L().Info("embedding clear continuing", zap.Int("cleared_so_far", total.ClearedCount))
		}

		out := clearOutput{Result: *total}
		if total.HasMore && total.Cursor != nil {
			if out.NextCursor, err = total.Cursor.Encode(); err != nil {
				return err
			}
		}
		return writeReport(cmd.OutOrStdout(), embedFormat, out)
	},
}

func init() {
	embeddingsClearCmd.Flags().IntVar(&embedBatchSize, "batch-size", 0, "leads per batch (default from config)")
	embeddingsClearCmd.Flags().IntVar(&embedMaxBatches, "max-batches", 0, "batches per invocation (default from config)")
	embeddingsClearCmd.Flags().StringVar(&embedCursor, "cursor", "", "nextCursor token from a previous run")
	embeddingsClearCmd.Flags().BoolVar(&embedAll, "all", false, "repeat invocations until no embeddings remain")
	embeddingsClearCmd.Flags().StringVar(&embedFormat, "format", "json", "report format: json or yaml")

	embeddingsCmd.AddCommand(embeddingsClearCmd)
	rootCmd.AddCommand(embeddingsCmd)
}
