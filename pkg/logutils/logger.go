// Copyright 2024-2026 Aiku AI

// Package logutils builds the process logger.
package logutils

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.mau.fi/zeroconfig"
)

// New compiles the logging config into a logger. A non-empty level
// overrides the configured minimum level. Without writers, logs go to
// stdout in colored pretty format.
//
// The level parameter can be one of: trace, debug, info, warn, error, fatal.
func New(cfg zeroconfig.Config, level string) (*zerolog.Logger, error) {
	if level != "" {
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.MinLevel = &lvl
	}
	if len(cfg.Writers) == 0 {
		cfg.Writers = []zeroconfig.WriterConfig{{
			Type:   zeroconfig.WriterTypeStdout,
			Format: zeroconfig.LogFormatPrettyColored,
		}}
	}

	log, err := cfg.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile logging config: %w", err)
	}
	return log, nil
}
