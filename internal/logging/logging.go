/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package logging constructs the process-wide structured logger. It mirrors
// the teacher's controller-runtime logging setup (a zap core bridged through
// logr) without pulling in controller-runtime itself: there is no manager or
// reconciler here, just the same logr.Logger-over-zap construction.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the zap encoder.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// New builds a root logr.Logger. Console format uses the development
// encoder (colorized, human-oriented); JSON format uses the production
// encoder, matching the teacher's dev-vs-batch split.
func New(format Format, debug bool) (logr.Logger, error) {
	var cfg zap.Config
	if format == FormatJSON {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	zl, err := cfg.Build()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}

// Named returns a sub-logger scoped to one component, matching the
// teacher's per-area logger naming (e.g. "hortator.ai/operator").
func Named(root logr.Logger, component string) logr.Logger {
	return root.WithName(component)
}
