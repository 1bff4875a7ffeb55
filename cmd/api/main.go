/*
 * Copyright 2017-2022 Provide Technologies Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shieldpay/privacy/common"
	"github.com/shieldpay/privacy/ledger"
	"github.com/shieldpay/privacy/prover"
	"github.com/shieldpay/privacy/store"
)

const runloopSleepInterval = 250 * time.Millisecond
const shutdownGracePeriod = 10 * time.Second

var (
	cancelF     context.CancelFunc
	closing     uint32
	shutdownCtx context.Context
	sigs        chan os.Signal

	srv *http.Server
)

func main() {
	common.Log.Debugf("starting privacy API...")
	installSignalHandlers()

	shutdownCtx, cancelF = context.WithCancel(context.Background())

	snapshotStore, err := store.InitStore("ledger", common.PersistenceProvider, common.PersistencePath)
	if err != nil {
		common.Log.Panicf("failed to initialize ledger snapshot store; %s", err.Error())
	}

	l, err := ledger.InitLedger(snapshotStore)
	if err != nil {
		common.Log.Panicf("failed to initialize ledger; %s", err.Error())
	}

	svc := prover.InitServiceFromConfig()

	var wg sync.WaitGroup
	ledger.RequireConsumers(l, &wg)

	serveAPI(l, svc)

	common.Log.Debugf("privacy API running")

	timer := time.NewTicker(runloopSleepInterval)
	defer timer.Stop()

	for !shuttingDown() {
		select {
		case <-timer.C:
		case sig := <-sigs:
			common.Log.Debugf("received signal: %s", sig)
			shutdown()
		case <-shutdownCtx.Done():
		}
	}

	common.Log.Debug("exiting privacy API")
	cancelF()
}

func installSignalHandlers() {
	common.Log.Debug("installing signal handlers for privacy API")
	sigs = make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
}

func serveAPI(l *ledger.Ledger, svc *prover.Service) {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/status", statusHandler)
	ledger.InstallLedgerAPI(r, l)
	prover.InstallProverAPI(r, svc)

	srv = &http.Server{
		Addr:    listenAddr(),
		Handler: r,
	}

	go func() {
		common.Log.Debugf("privacy API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.Log.Panicf("failed to serve privacy API; %s", err.Error())
		}
	}()
}

func listenAddr() string {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return fmt.Sprintf("0.0.0.0:%s", port)
}

func statusHandler(c *gin.Context) {
	common.Render(nil, 204, c)
}

func shutdown() {
	if atomicShouldShutdown() {
		common.Log.Debug("shutting down privacy API")
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				common.Log.Warningf("failed to gracefully shut down privacy API; %s", err.Error())
			}
		}
		cancelF()
	}
}

func shuttingDown() bool {
	return shutdownCtx.Err() != nil
}

func atomicShouldShutdown() bool {
	return atomic.CompareAndSwapUint32(&closing, 0, 1)
}
