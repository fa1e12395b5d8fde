// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package releases

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bundlenudge/bundlenudge/cli/api"
)

var publishCmd = &cobra.Command{
	Use:   "publish <app-id> <version> <bundle-file>",
	Short: "Publish a new release",
	Long: `Publish a new bundle release for an app.

The bundle file is uploaded as-is. An optional critical config file may be
provided with --critical-config; it is a JSON document with "routes",
"events", and "endpoints" keys that configures the SDK's post-update
health verification.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := api.CtxGetApi(cmd.Context())
		channel, _ := cmd.Flags().GetString("channel")
		configFile, _ := cmd.Flags().GetString("critical-config")
		return publishRelease(a, args[0], args[1], args[2], channel, configFile)
	},
}

func init() {
	ReleasesCmd.AddCommand(publishCmd)
	publishCmd.Flags().String("channel", "production", "Channel to publish to")
	publishCmd.Flags().String("critical-config", "", "JSON file with critical routes/events/endpoints")
}

func publishRelease(a *api.Api, appId, version, bundleFile, channel, configFile string) error {
	bundle, err := os.ReadFile(bundleFile)
	if err != nil {
		return fmt.Errorf("failed to read bundle file: %w", err)
	}

	req := api.ReleasePublishReq{
		Channel: channel,
		Version: version,
		Bundle:  bundle,
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to read critical config file: %w", err)
		}
		if err := json.Unmarshal(data, &req.CriticalConfig); err != nil {
			return fmt.Errorf("failed to parse critical config file: %w", err)
		}
	}

	release, err := a.Releases(appId).Publish(req)
	cobra.CheckErr(err)

	fmt.Printf("Published %s to channel '%s'\n", release.Version, release.Channel)
	fmt.Printf("  Bundle hash: %s\n", release.BundleHash)
	fmt.Printf("  Bundle size: %d bytes\n", release.BundleSize)
	return nil
}
