// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package gateway

import (
	"fmt"

	"github.com/bundlenudge/bundlenudge/context"
	"github.com/bundlenudge/bundlenudge/server"
	storage "github.com/bundlenudge/bundlenudge/storage/gateway"
)

const serverName = "device-gateway"

func NewServer(ctx context.Context, db *storage.DbHandle, fs *storage.FsHandle, port uint16) (server.Server, error) {
	strg, err := storage.NewStorage(db, fs)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s storage: %w", serverName, err)
	}
	signer, err := NewManifestSigner(fs)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s manifest signer: %w", serverName, err)
	}
	e := server.NewEchoServer()
	srv := server.NewServer(ctx, e, serverName, port, nil)
	RegisterHandlers(e, strg, signer)
	return srv, nil
}
