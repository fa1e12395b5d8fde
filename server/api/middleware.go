// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bundlenudge/bundlenudge/auth"
	"github.com/bundlenudge/bundlenudge/storage/operators"
)

func requireScope(scope auth.Scopes) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := c.Get("user").(auth.User)
			if err := user.HasScope(scope); err != nil {
				if err2 := c.String(http.StatusForbidden, err.Error()); err2 != nil {
					return errors.Join(err, err2)
				}
				return err
			}
			return next(c)
		}
	}
}

func authUser(authFunc auth.AuthUserFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := authFunc(c.Response().Writer, c.Request())
			if user == nil || err != nil {
				return err
			}
			c.Set("user", user)

			req := c.Request()
			ctx := req.Context()
			log := CtxGetLog(ctx).With("user", user.Id())
			ctx = CtxWithLog(ctx, log)
			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}

// TokenAuthUser authenticates requests with operator API tokens.
func TokenAuthUser(ops *operators.Storage) auth.AuthUserFunc {
	return func(w http.ResponseWriter, r *http.Request) (auth.User, error) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || len(token) == 0 {
			http.Error(w, "Missing bearer token", http.StatusUnauthorized)
			return nil, nil
		}
		op, err := ops.GetByToken(token)
		if err != nil {
			http.Error(w, "Unexpected error looking up token", http.StatusBadGateway)
			return nil, err
		}
		if op == nil {
			http.Error(w, "Invalid bearer token", http.StatusUnauthorized)
			return nil, nil
		}
		return op, nil
	}
}
