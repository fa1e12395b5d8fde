// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package gateway

import (
	"github.com/bundlenudge/bundlenudge/context"
	storage "github.com/bundlenudge/bundlenudge/storage/gateway"
)

type (
	Context = context.Context
	ctxKey  int
)

var (
	CtxGetLog  = context.CtxGetLog
	CtxWithLog = context.CtxWithLog
)

const (
	ctxKeyApp ctxKey = iota
	ctxKeyDevice
)

func CtxGetApp(ctx Context) *storage.App {
	return ctx.Value(ctxKeyApp).(*storage.App)
}

func CtxWithApp(ctx Context, app *storage.App) Context {
	return context.WithValue(ctx, ctxKeyApp, app)
}

// CtxGetDevice returns nil for requests that did not identify a device.
func CtxGetDevice(ctx Context) *storage.Device {
	if d, ok := ctx.Value(ctxKeyDevice).(*storage.Device); ok {
		return d
	}
	return nil
}

func CtxWithDevice(ctx Context, device *storage.Device) Context {
	return context.WithValue(ctx, ctxKeyDevice, device)
}
