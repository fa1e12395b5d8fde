// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package releases

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bundlenudge/bundlenudge/cli/api"
)

var enableCmd = &cobra.Command{
	Use:   "enable <app-id> <channel> <version>",
	Short: "Enable a release",
	Long:  `Make a release visible to devices checking for updates`,
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := api.CtxGetApi(cmd.Context())
		return setEnabled(a, args[0], args[1], args[2], true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <app-id> <channel> <version>",
	Short: "Disable a release",
	Long: `Hide a release from devices checking for updates.

Disabling the latest release is the server-side kill switch: devices that
already applied it keep running it, but no new devices will receive it, and
devices that roll back will not be offered it again.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := api.CtxGetApi(cmd.Context())
		return setEnabled(a, args[0], args[1], args[2], false)
	},
}

func init() {
	ReleasesCmd.AddCommand(enableCmd)
	ReleasesCmd.AddCommand(disableCmd)
}

func setEnabled(a *api.Api, appId, channel, version string, enabled bool) error {
	err := a.Releases(appId).SetEnabled(channel, version, enabled)
	cobra.CheckErr(err)

	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	fmt.Printf("Release %s/%s is now %s\n", channel, version, state)
	return nil
}
