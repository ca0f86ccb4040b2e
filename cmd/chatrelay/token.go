package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chatrelay/internal/config"
)

func newTokenCmd() *cobra.Command {
	var service, account string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the bot token stored in the OS keychain",
	}
	set := &cobra.Command{
		Use:   "set",
		Short: "Read a token from stdin and store it in the keychain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read token: %w", err)
			}
			tok := strings.TrimSpace(line)
			if tok == "" {
				return errors.New("empty token")
			}
			if err := config.StoreToken(service, account, tok); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token stored (service=%s account=%s)\n", service, account)
			fmt.Fprintln(cmd.OutOrStdout(), "set telegram.keyring_account in the config to use it")
			return nil
		},
	}
	set.Flags().StringVar(&service, "service", config.DefaultKeyringName, "keychain service name")
	set.Flags().StringVar(&account, "account", "bot", "keychain account name")
	cmd.AddCommand(set)
	return cmd
}
