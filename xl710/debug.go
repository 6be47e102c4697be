// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xl710

import (
	"net/http"
	"os"

	// Blank-imported for its side effect: it registers a live charts
	// handler (heap size, goroutine count, GC pauses) on
	// http.DefaultServeMux.
	_ "github.com/mkevac/debugcharts"
	"go.uber.org/zap"
)

// envDebugChartsAddr names the environment variable that, if set,
// starts an HTTP server exposing debugcharts' live runtime dashboard
// for use while developing against cmd/xl710sim. Never enabled by
// default; it has no place in a production data path.
const envDebugChartsAddr = "XL710_DEBUGCHARTS_ADDR"

// maybeServeDebugCharts starts the debugcharts dashboard if
// XL710_DEBUGCHARTS_ADDR is set.
func (p *Trqpair) maybeServeDebugCharts() {
	addr := os.Getenv(envDebugChartsAddr)
	if addr == "" {
		return
	}

	go func() {
		if err := http.ListenAndServe(addr, http.DefaultServeMux); err != nil && p.log != nil {
			p.log.Warn("xl710: debugcharts server exited", zap.Error(err))
		}
	}()
}
