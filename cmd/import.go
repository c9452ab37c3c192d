package main

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/leadio"
	"github.com/sells-group/lead-engine/internal/model"
)

var (
	importFile       string
	importSourceFile string
	importSheet      string
	importFormat     string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import leads or procurement links from a file",
}

var importLeadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Bulk import leads from .json, .jsonl or .xlsx",
	Long:  "Reads lead payloads and runs them through bulk ingest. Payloads matching a stored lead, or an earlier payload in the file, are skipped and listed in the report.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var (
			payloads []model.LeadPayload
			err      error
		)
		if importSheet != "" {
			if !isXLSX(importFile) {
				return eris.New("--sheet only applies to .xlsx files")
			}
			payloads, err = leadio.ReadLeadsXLSX(importFile, leadio.XLSXOptions{SheetName: importSheet})
		} else {
			payloads, err = leadio.LoadLeads(ctx, importFile)
		}
		if err != nil {
			return eris.Wrap(err, "read leads")
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		source := importSourceFile
		if source == "" {
			source = filepath.Base(importFile)
		}
		res, err := env.Service.Ingest.BulkCreate(ctx, payloads, source)
		if err != nil {
			return eris.Wrap(err, "import leads")
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Int("imported", len(res.Imported)),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
		)
		return writeReport(cmd.OutOrStdout(), importFormat, res)
	},
}

var importLinksCmd = &cobra.Command{
	Use:   "links",
	Short: "Bulk import procurement links from .json or .jsonl",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		links, err := leadio.LoadLinks(ctx, importFile)
		if err != nil {
			return eris.Wrap(err, "read links")
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Service.ImportLinks(ctx, links)
		if err != nil {
			return eris.Wrap(err, "import links")
		}
		zap.L().Info("link import complete", zap.String("file", importFile), zap.Int64("inserted", n))
		return writeReport(cmd.OutOrStdout(), importFormat, map[string]int64{"inserted": n})
	},
}

func init() {
	for _, c := range []*cobra.Command{importLeadsCmd, importLinksCmd} {
		c.Flags().StringVar(&importFile, "file", "", "path to the input file (required)")
		c.Flags().StringVar(&importFormat, "format", "json", "report format: json or yaml")
		_ = c.MarkFlagRequired("file")
		importCmd.AddCommand(c)
	}
	importLeadsCmd.Flags().StringVar(&importSourceFile, "source-file", "", "source file recorded on each lead (default: file name)")
	importLeadsCmd.Flags().StringVar(&importSheet, "sheet", "", "xlsx sheet name (default: first sheet)")
	rootCmd.AddCommand(importCmd)
}

// isXLSX reports whether path names a spreadsheet.
func isXLSX(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}
