// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package releases

import "github.com/spf13/cobra"

var ReleasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "Manage releases",
	Long:  `Commands for publishing and managing app bundle releases`,
}
