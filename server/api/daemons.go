// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package api

import (
	"time"

	"github.com/bundlenudge/bundlenudge/storage/operators"
)

type daemonFunc func(ctx Context, stop chan bool)

type daemons struct {
	context Context
	daemons []daemonFunc
	stops   []chan bool
}

func NewDaemons(context Context, ops *operators.Storage) *daemons {
	d := &daemons{context: context}
	d.daemons = append(d.daemons, tokenGc(ops))
	return d
}

func (d *daemons) Start() {
	for _, f := range d.daemons {
		// Buffered so Shutdown never blocks on a daemon that already
		// exited when the server context was cancelled.
		stop := make(chan bool, 1)
		d.stops = append(d.stops, stop)
		go f(d.context, stop)
	}
}

func (d *daemons) Shutdown() {
	for _, s := range d.stops {
		s <- true
	}
}

// tokenGc drops expired operator tokens once an hour.
func tokenGc(ops *operators.Storage) daemonFunc {
	return func(ctx Context, stop chan bool) {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				ops.RunGc()
			}
		}
	}
}
