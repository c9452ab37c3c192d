package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-engine/internal/hunt"
)

var (
	huntFile         string
	huntDocumentName string
	huntSourceURL    string
	huntRegion       string
	huntWorkflowID   string
	huntFormat       string
)

var huntCmd = &cobra.Command{
	Use:   "hunt",
	Short: "Extract leads from a document with Claude and import them",
	Long:  "Sends the document text to Claude, parses the returned lead array, stamps each lead with the hunt workflow id and imports the batch. Duplicates of stored leads are skipped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		text, err := os.ReadFile(huntFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", huntFile)
		}

		env, err := initEnv(ctx, "hunt")
		if err != nil {
			return err
		}
		defer env.Close()

		region := huntRegion
		if region == "" {
			region = cfg.Ingest.DefaultRegion
		}
		res, err := newHunter(env).Hunt(ctx, hunt.Request{
			SourceText:   string(text),
			DocumentName: huntDocumentName,
			SourceURL:    huntSourceURL,
			Region:       region,
			WorkflowID:   huntWorkflowID,
		})
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), huntFormat, res)
	},
}

func init() {
	huntCmd.Flags().StringVar(&huntFile, "file", "", "text file holding the source document (required)")
	huntCmd.Flags().StringVar(&huntDocumentName, "document", "", "source document name")
	huntCmd.Flags().StringVar(&huntSourceURL, "url", "", "source document URL")
	huntCmd.Flags().StringVar(&huntRegion, "region", "", "fallback region (default from ingest.default_region)")
	huntCmd.Flags().StringVar(&huntWorkflowID, "workflow-id", "", "workflow id (generated when empty)")
	huntCmd.Flags().StringVar(&huntFormat, "format", "json", "report format: json or yaml")
	_ = huntCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(huntCmd)
}
