package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/paging"
)

var (
	leadsCreateFile   string
	leadsPageLimit    int
	leadsPageAfter    string
	leadsPageAfterID  string
	leadsStatus       string
	leadsVerification string
	leadsFormat       string
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Create, read and manage individual leads",
}

var leadsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create one lead from a JSON payload file (- for stdin)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var p model.LeadPayload
		if err := readJSONFile(leadsCreateFile, &p); err != nil {
			return err
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		lead, err := env.Service.Ingest.Create(ctx, &p)
		if err != nil {
			return eris.Wrap(err, "create lead")
		}
		return writeReport(cmd.OutOrStdout(), leadsFormat, lead)
	},
}

var leadsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		lead, err := env.Service.GetLead(ctx, args[0])
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), leadsFormat, lead)
	},
}

var leadsPageCmd = &cobra.Command{
	Use:   "page",
	Short: "Print one page of leads, newest first",
	Long:  "Prints one page of leads ordered by createdAt then id, newest first. Pass the lastCreatedAt and lastId of the previous page to continue.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var cursor *paging.Cursor
		if leadsPageAfter != "" {
			at, err := time.Parse(time.RFC3339Nano, leadsPageAfter)
			if err != nil {
				return eris.Wrap(err, "parse --after")
			}
			cursor = &paging.Cursor{LastCreatedAt: &at}
		}
		if leadsPageAfterID != "" {
			if cursor == nil {
				cursor = &paging.Cursor{}
			}
			cursor.LastID = leadsPageAfterID
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		page, err := env.Service.Pager.Page(ctx, leadsPageLimit, cursor)
		if err != nil {
			return eris.Wrap(err, "page leads")
		}
		return writeReport(cmd.OutOrStdout(), leadsFormat, page)
	},
}

var leadsStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Set a lead's status and/or verification status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var status, verification *string
		if cmd.Flags().Changed("status") {
			status = &leadsStatus
		}
		if cmd.Flags().Changed("verification") {
			verification = &leadsVerification
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		lead, err := env.Service.UpdateLeadStatus(ctx, args[0], status, verification)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), leadsFormat, lead)
	},
}

var leadsCheckCmd = &cobra.Command{
	Use:   "check <id>",
	Short: "Record that a lead's source was confirmed now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		lead, err := env.Service.MarkChecked(ctx, args[0])
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), leadsFormat, lead)
	},
}

var leadsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Service.DeleteLead(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var leadsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count leads by active flag",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Service.Stats(ctx)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), leadsFormat, stats)
	},
}

var leadsWorkflowCmd = &cobra.Command{
	Use:   "workflow <workflow-id>",
	Short: "List the leads a lead hunt produced",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		found, err := env.Service.ListLeadsByWorkflow(ctx, args[0])
		if err != nil {
			return err
		}
		if found == nil {
			found = []model.Lead{}
		}
		return writeReport(cmd.OutOrStdout(), leadsFormat, found)
	},
}

// readJSONFile decodes path into dst; "-" reads stdin.
func readJSONFile(path string, dst any) error {
	f := os.Stdin
	if path != "-" {
		var err error
		if f, err = os.Open(path); err != nil {
			return eris.Wrapf(err, "open %s", path)
		}
		defer f.Close() //nolint:errcheck
	}
	if err := json.NewDecoder(f).Decode(dst); err != nil {
		return eris.Wrapf(err, "decode %s", path)
	}
	return nil
}

func init() {
	leadsCmd.PersistentFlags().StringVar(&leadsFormat, "format", "json", "output format: json or yaml")

	leadsCreateCmd.Flags().StringVar(&leadsCreateFile, "file", "-", "JSON payload file")

	leadsPageCmd.Flags().IntVar(&leadsPageLimit, "limit", 0, "page size (default from config)")
	leadsPageCmd.Flags().StringVar(&leadsPageAfter, "after", "", "lastCreatedAt of the previous page (RFC 3339)")
	leadsPageCmd.Flags().StringVar(&leadsPageAfterID, "after-id", "", "lastId of the previous page")

	leadsStatusCmd.Flags().StringVar(&leadsStatus, "status", "", "new status")
	leadsStatusCmd.Flags().StringVar(&leadsVerification, "verification", "", "new verification status")

	leadsCmd.AddCommand(leadsCreateCmd, leadsGetCmd, leadsPageCmd, leadsStatusCmd,
		leadsCheckCmd, leadsDeleteCmd, leadsStatsCmd, leadsWorkflowCmd)
	rootCmd.AddCommand(leadsCmd)
}
