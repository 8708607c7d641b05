package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/sleuth/internal/app"
	"github.com/MrSnakeDoc/sleuth/internal/config"
	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/MrSnakeDoc/sleuth/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sleuth",
		Short:         "Find which platforms a username exists on",
		Long:          "Sleuth probes a catalog of platforms for a username, optionally through rotating proxies.\nWithout a subcommand it runs the HTTP service.",
		SilenceUsage:  true,
		Version:       version.String(),
		RunE:          runServe,
		Args:          cobra.NoArgs,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			Args:  cobra.NoArgs,
			RunE:  runServe,
		},
		newSearchCmd(),
		newCacheCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "sleuth %s\n", version.String())
			},
		},
	)
	return root
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load()
	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	a, err := app.New(cfg, loggerClient)
	if err != nil {
		loggerClient.Error("❌ sleuth failed to start", logger.Error(err))
		return err
	}
	return a.Run()
}
