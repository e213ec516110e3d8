package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var (
		configFlag string
		serverFlag string
		tokenFlag  string
		ownerFlag  string
		jsonFlag   bool
	)
	ctx := &commandContext{
		configFlag: &configFlag,
		serverFlag: &serverFlag,
		tokenFlag:  &tokenFlag,
		ownerFlag:  &ownerFlag,
		jsonFlag:   &jsonFlag,
	}

	rootCmd := &cobra.Command{
		Use:           "marketpulsectl",
		Short:         "Submit and inspect marketpulse jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipSettings(cmd) {
				return nil
			}
			_, err := ctx.ensureSettings()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFlag, "config", "c", "", "Settings file (default ~/.config/marketpulse/ctl.toml)")
	flags.StringVar(&serverFlag, "server", "", "Service base URL")
	flags.StringVar(&tokenFlag, "token", "", "Bearer token")
	flags.StringVar(&ownerFlag, "owner", "", "Owner sent in the owner header")
	flags.BoolVar(&jsonFlag, "json", false, "Print JSON instead of text")

	rootCmd.AddCommand(
		newSubmitCommand(ctx),
		newStatusCommand(ctx),
		newWatchCommand(ctx),
		newCancelCommand(ctx),
		newHistoryCommand(ctx),
		newDownloadCommand(ctx),
		newAskCommand(ctx),
	)
	return rootCmd
}
