// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package login

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bundlenudge/bundlenudge/cli/config"
)

var LoginCmd = &cobra.Command{
	Use:   "login <context-name> <server-url>",
	Short: "Configure authentication for a server",
	Long: `Save a named context for a BundleNudge server.

The operator token comes from 'create-operator' on the server. With
--default-app set, app-scoped commands on this context no longer need an
explicit app id.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		defaultApp, _ := cmd.Flags().GetString("default-app")
		setDefault, _ := cmd.Flags().GetBool("set-default")
		configPath, _ := cmd.Flags().GetString("config")

		return login(cmd, args[0], config.Context{
			URL:        args[1],
			Token:      token,
			DefaultApp: defaultApp,
		}, configPath, setDefault)
	},
}

func init() {
	LoginCmd.Flags().String("token", "", "Operator API token (required for now)")
	LoginCmd.Flags().String("default-app", "", "App id to use when commands omit one")
	LoginCmd.Flags().Bool("set-default", true, "Set this context as the default")
	cobra.CheckErr(LoginCmd.MarkFlagRequired("token"))
}

func login(cmd *cobra.Command, name string, ctx config.Context, configPath string, setDefault bool) error {
	cfg, err := config.LoadConfig(configPath)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		// First login on this machine
		cfg = &config.Config{}
	default:
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.SetContext(name, ctx, setDefault)
	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configured context '%s' for %s\n", name, ctx.URL)
	if ctx.DefaultApp != "" {
		_, _ = fmt.Fprintf(out, "  Default app: %s\n", ctx.DefaultApp)
	}
	if setDefault {
		_, _ = fmt.Fprintln(out, "  Set as default context")
	}
	return nil
}
