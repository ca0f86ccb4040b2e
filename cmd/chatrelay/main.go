package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chatrelay/internal/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "chatrelay",
		Short:         "Copy messages from one Telegram chat into another",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv(config.EnvConfig),
		"path to config file (json or yaml); env "+config.EnvConfig)

	root.AddCommand(
		newServeCmd(&cfgPath),
		newLogsCmd(&cfgPath),
		newTokenCmd(),
	)
	return root
}
