package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chatrelay/internal/config"
	"chatrelay/internal/storage"
	logx "chatrelay/pkg/logx"
)

func newLogsCmd(cfgPath *string) *cobra.Command {
	var (
		limit      int
		timestamps bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print persisted relay log lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewConfigManager(*cfgPath).Parse()
			if err != nil {
				return err
			}
			busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
			if err != nil {
				return err
			}
			st, err := storage.Open(storage.Config{
				Driver:      config.StorageDriver(cfg.Storage),
				Path:        cfg.Storage.Path,
				DSN:         cfg.Storage.DSN,
				BusyTimeout: busy,
			}, logx.NewConsole(cfg.Logging.Level))
			if errors.Is(err, storage.ErrDisabled) {
				return errors.New("storage is disabled; set storage.driver to read persisted logs")
			}
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			es, err := st.RecentLogs(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range es {
				if timestamps {
					fmt.Fprintf(out, "%s  %s\n", e.At.Format(time.RFC3339), e.Text)
					continue
				}
				fmt.Fprintln(out, e.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "number of newest lines to print; 0 prints all")
	cmd.Flags().BoolVarP(&timestamps, "timestamps", "t", false, "prefix each line with its time")
	return cmd
}
