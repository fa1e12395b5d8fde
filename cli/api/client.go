// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bundlenudge/bundlenudge/cli/config"
)

// Version is reported to the server in the CLI's User-Agent so the request
// logs can tell nudgectl traffic from SDK traffic.
const Version = "1.0.0"

const userAgent = "nudgectl/" + Version

type Api struct {
	URL string
	// DefaultApp scopes app-typed commands when no --app flag or app-id
	// argument is given.
	DefaultApp string

	Client *http.Client
}

func NewClient(appCtx config.Context) *Api {
	return &Api{
		URL:        strings.TrimRight(appCtx.URL, "/"),
		DefaultApp: appCtx.DefaultApp,

		Client: &http.Client{
			Transport: &operatorTransport{
				token: appCtx.Token,
				base:  http.DefaultTransport,
			},
		},
	}
}

// operatorTransport decorates every outgoing request with the operator's
// bearer token and the CLI identification header.
type operatorTransport struct {
	token string
	base  http.RoundTripper
}

func (t *operatorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqBodyClosed := false
	if req.Body != nil {
		defer func() {
			if !reqBodyClosed {
				if err := req.Body.Close(); err != nil {
					slog.Error("failed to close request body", "error", err)
				}
			}
		}()
	}

	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+t.token)
	req2.Header.Set("User-Agent", userAgent)

	// req.Body is assumed to be closed by the base RoundTripper.
	reqBodyClosed = true
	return t.base.RoundTrip(req2)
}

// The configured Api client rides the cobra command context from the root
// command's PersistentPreRunE down to the leaf subcommands.

type apiContextKey int

const contextKey apiContextKey = iota

func CtxGetApi(ctx context.Context) *Api {
	return ctx.Value(contextKey).(*Api)
}

func CtxWithApi(ctx context.Context, api *Api) context.Context {
	return context.WithValue(ctx, contextKey, api)
}
