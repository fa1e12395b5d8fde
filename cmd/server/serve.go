// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bundlenudge/bundlenudge/context"
	"github.com/bundlenudge/bundlenudge/server"
	"github.com/bundlenudge/bundlenudge/server/api"
	"github.com/bundlenudge/bundlenudge/server/gateway"
	"github.com/bundlenudge/bundlenudge/storage"
)

type ServeCmd struct {
	startedCb func(apiAddress, gatewayAddress string)

	ApiPort         uint16        `default:"8080"`
	GatewayPort     uint16        `default:"8443"`
	ShutdownTimeout time.Duration `default:"1m" help:"How long to wait for in-flight requests on shutdown"`
}

func (c *ServeCmd) Run(args CommonArgs) error {
	ctx, cancel := context.WithCancel(args.ctx)
	defer cancel()
	log := context.CtxGetLog(ctx)

	fs, err := storage.NewFs(args.DataDir)
	if err != nil {
		return fmt.Errorf("failed to load filesystem: %w", err)
	}
	db, err := storage.NewDb(fs.Config.DbFile())
	if err != nil {
		return fmt.Errorf("failed to load database: %w", err)
	}
	apiServer, err := api.NewServer(ctx, db, fs, c.ApiPort)
	if err != nil {
		return err
	}
	gtwServer, err := gateway.NewServer(ctx, db, fs, c.GatewayPort)
	if err != nil {
		return err
	}

	quitErr := make(chan error, 2)
	apiServer.Start(quitErr)
	gtwServer.Start(quitErr)
	log.Info("servers started",
		"api", apiServer.GetAddress(), "gateway", gtwServer.GetAddress())

	if c.startedCb != nil {
		// Testing code, see serve_test.go
		time.Sleep(time.Millisecond * 2)
		c.startedCb(apiServer.GetAddress(), gtwServer.GetAddress())
	}

	// setup channel to gracefully terminate server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err = <-quitErr:
		log.Error("server exited", "error", err)
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	// Cancelling the context stops the background daemons before we drain
	// in-flight requests.
	cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	for _, srv := range []server.Server{apiServer, gtwServer} {
		go func() {
			srv.Shutdown(c.ShutdownTimeout)
			wg.Done()
		}()
	}
	wg.Wait()

	return err
}
