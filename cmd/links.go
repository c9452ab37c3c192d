package main

import (
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/leadio"
	"github.com/sells-group/lead-engine/internal/model"
)

var (
	linkState        string
	linkCapital      string
	linkWebsite      string
	linkURL          string
	linkRegistration bool
	linkStatus       string
	linksFormat      string
	linksOutput      string
)

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Manage known procurement links",
}

var linksAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or update a procurement link by URL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		link := &model.ProcurementLink{
			State:           linkState,
			Capital:         linkCapital,
			OfficialWebsite: linkWebsite,
			ProcurementLink: linkURL,
			Status:          model.LinkStatus(linkStatus),
		}
		if cmd.Flags().Changed("requires-registration") {
			link.RequiresRegistration = &linkRegistration
		}
		saved, err := env.Service.AddLink(ctx, link)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), "json", saved)
	},
}

var linksStatusCmd = &cobra.Command{
	Use:   "status <id> <pending|approved|invalid>",
	Short: "Set a procurement link's review status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Service.SetLinkStatus(ctx, args[0], model.LinkStatus(args[1])); err != nil {
			return err
		}
		zap.L().Info("link status updated", zap.String("id", args[0]), zap.String("status", args[1]))
		return nil
	},
}

var linksApprovedCmd = &cobra.Command{
	Use:   "approved",
	Short: "Export approved procurement links",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		links, err := env.Service.ApprovedLinks(ctx)
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if linksOutput != "" {
			f, err := os.Create(linksOutput)
			if err != nil {
				return eris.Wrapf(err, "create %s", linksOutput)
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		if err := leadio.WriteLinks(w, links, linksFormat, time.Now().UTC()); err != nil {
			return err
		}
		if linksOutput != "" {
			zap.L().Info("approved links exported", zap.String("file", linksOutput), zap.Int("count", len(links)))
		}
		return nil
	},
}

func init() {
	linksAddCmd.Flags().StringVar(&linkState, "state", "", "state name")
	linksAddCmd.Flags().StringVar(&linkCapital, "capital", "", "state capital")
	linksAddCmd.Flags().StringVar(&linkWebsite, "website", "", "official website")
	linksAddCmd.Flags().StringVar(&linkURL, "url", "", "procurement link (required)")
	linksAddCmd.Flags().BoolVar(&linkRegistration, "requires-registration", false, "vendor registration required")
	linksAddCmd.Flags().StringVar(&linkStatus, "status", string(model.LinkStatusPending), "pending, approved or invalid")
	_ = linksAddCmd.MarkFlagRequired("url")

	linksApprovedCmd.Flags().StringVar(&linksFormat, "format", leadio.FormatTable, "table, json, csv or yaml")
	linksApprovedCmd.Flags().StringVarP(&linksOutput, "output", "o", "", "write to file instead of stdout")

	linksCmd.AddCommand(linksAddCmd, linksStatusCmd, linksApprovedCmd)
	rootCmd.AddCommand(linksCmd)
}
