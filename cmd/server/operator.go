// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package main

import (
	"fmt"
	"time"

	"github.com/bundlenudge/bundlenudge/auth"
	"github.com/bundlenudge/bundlenudge/storage"
	"github.com/bundlenudge/bundlenudge/storage/operators"
)

type OperatorCmd struct {
	Name        string   `arg:"positional,required" help:"Operator account name"`
	Scopes      []string `help:"Scopes granted to the operator, defaults to all"`
	ExpiresDays int      `default:"365" help:"Days until the initial token expires"`
}

// Run creates an operator and prints its first API token. The first run on
// a fresh data directory also creates the HMAC secret tokens are hashed
// with.
func (c OperatorCmd) Run(args CommonArgs) error {
	fs, err := storage.NewFs(args.DataDir)
	if err != nil {
		return err
	}
	if _, err := fs.Auth.GetHmacSecret(); err != nil {
		fmt.Println("Initializing new HMAC secret")
		if err := fs.Auth.InitHmacSecret(); err != nil {
			return err
		}
	}
	db, err := storage.NewDb(fs.Config.DbFile())
	if err != nil {
		return err
	}
	ops, err := operators.NewStorage(db, fs)
	if err != nil {
		return err
	}

	scopes := auth.ScopeAll
	if len(c.Scopes) > 0 {
		scopes, err = auth.ScopesFromSlice(c.Scopes)
		if err != nil {
			return err
		}
	}

	o := operators.Operator{
		Name:          c.Name,
		AllowedScopes: scopes,
	}
	if err := ops.Create(&o); err != nil {
		return fmt.Errorf("unable to create operator: %w", err)
	}

	expires := time.Now().AddDate(0, 0, c.ExpiresDays).Unix()
	token, err := o.GenerateToken("initial token", expires, scopes)
	if err != nil {
		return fmt.Errorf("unable to create operator token: %w", err)
	}

	fmt.Printf("Created operator '%s' with scopes: %s\n", o.Name, scopes.String())
	fmt.Printf("API token (shown once): %s\n", token.Value)
	return nil
}
