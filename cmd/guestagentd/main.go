/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// guestagentd is the in-guest daemon: it starts the Guest Agent Server
// (§4.1) that workers talk to over HTTP to drive one VM through execute,
// observation, file, and evaluator-probe requests.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/legatus-arena/legatus/internal/guestagent"
	"github.com/legatus-arena/legatus/internal/logging"
)

func main() {
	var (
		addr        = flag.String("addr", ":5000", "Listen address for the guest agent HTTP service")
		a11yBackend = flag.String("a11y_backend", "uia", "Accessibility backend: uia|win32")
		logFormat   = flag.String("log-format", "console", "Log encoder: console|json")
		logDebug    = flag.Bool("debug", false, "Enable debug-level logging")
		metricsAddr = flag.String("metrics_addr", "", "If set, serve Prometheus metrics on this address")
	)
	flag.Parse()

	format := logging.FormatConsole
	if *logFormat == "json" {
		format = logging.FormatJSON
	}
	root, err := logging.New(format, *logDebug)
	if err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("build logger: %w", err))
		os.Exit(1)
	}
	log := logging.Named(root, "guestagentd")

	platform := guestagent.NewWinPlatform(log, *a11yBackend)
	srv := guestagent.New(platform, guestagent.OSClipboard{}, log)

	httpSrv := &http.Server{
		Addr:         *addr,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error(err, "metrics server exited")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("starting guest agent", "addr", *addr, "a11y_backend", *a11yBackend)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "server failed")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
