// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package apps

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bundlenudge/bundlenudge/cli/api"
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Register a new app",
	Long: `Register a new app with the server.

The gateway token printed by this command is shown exactly once. Embed it
in the mobile app's SDK configuration.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := api.CtxGetApi(cmd.Context())
		tier, _ := cmd.Flags().GetString("tier")
		return createApp(a, args[0], tier)
	},
}

func init() {
	AppsCmd.AddCommand(createCmd)
	createCmd.Flags().String("tier", "free", "App tier: free, team, or enterprise")
}

func createApp(a *api.Api, name, tier string) error {
	app, err := a.Apps().Create(name, tier)
	cobra.CheckErr(err)

	fmt.Printf("Created app '%s'\n", app.Name)
	fmt.Printf("  ID: %s\n", app.Id)
	fmt.Printf("  Tier: %s\n", app.Tier)
	fmt.Printf("  Token: %s\n", app.Token)
	fmt.Println("Save the token now. It will not be shown again.")
	return nil
}
