// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package devices

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bundlenudge/bundlenudge/cli/api"
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry <uuid>",
	Short: "Show recent telemetry for a device",
	Long:  `Display the telemetry events a device has reported, newest first`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := api.CtxGetApi(cmd.Context())
		return showTelemetry(a, args[0])
	},
}

func init() {
	DevicesCmd.AddCommand(telemetryCmd)
}

func showTelemetry(a *api.Api, uuid string) error {
	events, err := a.Devices().Telemetry(uuid)
	cobra.CheckErr(err)

	if len(events) == 0 {
		fmt.Println("No telemetry recorded for this device.")
		return nil
	}

	for _, evt := range events {
		line := evt.EventType
		if evt.DeviceTime != "" {
			line = evt.DeviceTime + " " + line
		}
		if len(evt.Metadata) > 0 {
			meta, err := json.Marshal(evt.Metadata)
			if err == nil {
				line += " " + string(meta)
			}
		}
		fmt.Println(line)
	}
	return nil
}
