// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package main

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"

	"github.com/bundlenudge/bundlenudge/context"
)

type CommonArgs struct {
	DataDir string `arg:"required" help:"Directory to store data"`

	Serve          *ServeCmd      `arg:"subcommand:serve" help:"Run the REST API and device-gateway services"`
	SigningKey     *SigningKeyCmd `arg:"subcommand:create-signing-key" help:"Create the Ed25519 key pair used to sign update manifests"`
	CreateOperator *OperatorCmd   `arg:"subcommand:create-operator" help:"Create an operator account and its first API token"`

	ctx context.Context
}

func main() {
	log, err := context.InitLogger("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
		return
	}

	args := CommonArgs{
		ctx: context.CtxWithLog(context.Background(), log),
	}
	p := arg.MustParse(&args)

	switch {
	case args.Serve != nil:
		err = args.Serve.Run(args)
	case args.SigningKey != nil:
		err = args.SigningKey.Run(args)
	case args.CreateOperator != nil:
		err = args.CreateOperator.Run(args)
	default:
		p.Fail("missing required subcommand")
	}
	if err != nil {
		log.Error("command failed", "error", err)
		os.Exit(1)
	}
}
