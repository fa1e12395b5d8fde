// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package api

import (
	"github.com/bundlenudge/bundlenudge/context"
)

type Context = context.Context

var (
	CtxGetLog  = context.CtxGetLog
	CtxWithLog = context.CtxWithLog
)
