// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package devices

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bundlenudge/bundlenudge/cli/api"
)

var showCmd = &cobra.Command{
	Use:   "show <uuid>",
	Short: "Show details for a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := api.CtxGetApi(cmd.Context())
		return showDevice(a, args[0])
	},
}

func init() {
	DevicesCmd.AddCommand(showCmd)
}

func showDevice(a *api.Api, uuid string) error {
	device, err := a.Devices().Get(uuid)
	cobra.CheckErr(err)

	fmt.Printf("Device: %s\n", device.Uuid)
	fmt.Printf("  App: %s\n", device.AppId)
	fmt.Printf("  Channel: %s\n", device.Channel)
	fmt.Printf("  Current version: %s\n", device.CurrentVersion)
	if device.PreviousVersion != "" {
		fmt.Printf("  Previous version: %s\n", device.PreviousVersion)
	}
	fmt.Printf("  SDK version: %s\n", device.SdkVersion)
	fmt.Printf("  Created: %s\n", time.Unix(device.CreatedAt, 0).Format(time.DateTime))
	fmt.Printf("  Last seen: %s\n", time.Unix(device.LastSeen, 0).Format(time.DateTime))
	return nil
}
