// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package apps

import "github.com/spf13/cobra"

var AppsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Manage apps",
	Long:  `Commands for managing apps registered with the BundleNudge server`,
}
