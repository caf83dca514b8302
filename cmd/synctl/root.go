package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfigPath string
	flagProfile    string
	flagVerbose    bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synctl",
		Short: "Exercise the notes sync engine against a configured target",
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "synctl.toml", "path to config file")
	cmd.PersistentFlags().StringVar(&flagProfile, "profile", "default", "profile name to run")
	cmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "enable debug logging")

	cmd.AddCommand(newSyncCmd())

	return cmd
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
