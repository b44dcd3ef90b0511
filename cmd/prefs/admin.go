package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/prefs/internal/api"
	"github.com/kalambet/prefs/internal/config"
)

// --- config ---

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or update configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			printStatus(cmd.OutOrStdout(), "Stored in", "%s", config.Location())
			for _, k := range config.ShowAll(a.cfg) {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
			}
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a configuration value. Valid keys: " + fmt.Sprint(config.ValidKeys()),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := config.SetKey(key, value); err != nil {
				return err
			}
			printSuccess(cmd.ErrOrStderr(), "Set %s = %s", key, value)
			return nil
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}

// --- token ---

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API bearer tokens",
	}

	issue := &cobra.Command{
		Use:   "issue",
		Short: "Print a signed token granting access to one namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireJWTSecret(); err != nil {
				return err
			}
			subject, _ := cmd.Flags().GetString("subject")
			if subject == "" {
				subject = a.cfg.App.ID
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")

			tok, err := api.IssueToken(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	issue.Flags().String("subject", "", "namespace the token grants (default: app.id)")
	issue.Flags().Duration("ttl", 24*time.Hour, "token lifetime (0 for no expiry)")

	secret := &cobra.Command{
		Use:   "secret [value]",
		Short: "Store the token signing secret in the platform secret store",
		Long: `Store the token signing secret in the platform secret store.
Without an argument a random 32-byte secret is generated.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				buf := make([]byte, 32)
				if _, err := rand.Read(buf); err != nil {
					return fmt.Errorf("generating secret: %w", err)
				}
				value = hex.EncodeToString(buf)
			}
			if err := config.StoreJWTSecret(value); err != nil {
				return fmt.Errorf("storing secret: %w", err)
			}
			printSuccess(cmd.ErrOrStderr(), "Signing secret stored")
			return nil
		},
	}

	cmd.AddCommand(issue, secret)
	return cmd
}
