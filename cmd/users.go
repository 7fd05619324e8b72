package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"riddlebot/pkg/bot"
	"riddlebot/pkg/users"
)

var (
	userName   string
	userWallet string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the user directory",
}

var usersAddCmd = &cobra.Command{
	Use:   "add ADDRESS",
	Short: "Register or update a sender address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime("cmd.users")
		if err != nil {
			return err
		}

		store, closer, err := bot.OpenUserStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}
		if _, ok := store.(*users.MemoryDirectory); ok {
			log.Warn("Static user backend is in memory; the entry is not persisted")
		}

		info, err := upsertUser(cmd.Context(), store, args[0], userName, userWallet)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", info.Address, info.DisplayName())
		return nil
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known users",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadRuntime("cmd.users")
		if err != nil {
			return err
		}

		store, closer, err := bot.OpenUserStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}

		list, err := store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		return writeUsers(cmd.OutOrStdout(), list)
	},
}

func init() {
	usersAddCmd.Flags().StringVar(&userName, "name", "", "display name")
	usersAddCmd.Flags().StringVar(&userWallet, "wallet", "", "wallet address for prizes")
	usersCmd.AddCommand(usersAddCmd, usersListCmd)
	rootCmd.AddCommand(usersCmd)
}

// upsertUser keeps existing fields that the flags leave blank.
func upsertUser(ctx context.Context, store users.Store, address string, name string, wallet string) (users.Info, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return users.Info{}, errors.New("address is required")
	}

	info, _, err := store.Lookup(ctx, address)
	if err != nil {
		return users.Info{}, fmt.Errorf("lookup user: %w", err)
	}
	info.Address = address
	if value := strings.TrimSpace(name); value != "" {
		info.Name = value
	}
	if value := strings.TrimSpace(wallet); value != "" {
		info.Wallet = value
	}

	if err := store.Save(ctx, info); err != nil {
		return users.Info{}, fmt.Errorf("save user: %w", err)
	}

	return info, nil
}

func writeUsers(out io.Writer, list []users.Info) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tNAME\tWALLET")
	for _, info := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Address, info.Name, info.Wallet)
	}

	return tw.Flush()
}
