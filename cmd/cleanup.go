package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var cleanupFormat string

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete duplicate, expired and invalid-link leads",
	Long:  "Scans every lead oldest first, deletes duplicates (keeping the oldest copy), leads past their bid deadline, and leads pointing at denylisted or invalid procurement links, then prints the report.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Service.Cleaner.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "cleanup")
		}
		return writeReport(cmd.OutOrStdout(), cleanupFormat, report)
	},
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupFormat, "format", "json", "report format: json or yaml")
	rootCmd.AddCommand(cleanupCmd)
}
