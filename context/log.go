// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package context

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
)

// Levels accepted by InitLogger and the BUNDLENUDGE_LOG variable.
var levelMap = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// InitLogger builds the process-wide JSON logger. The level comes from the
// argument, then BUNDLENUDGE_LOG, then defaults to info.
func InitLogger(level string) (*slog.Logger, error) {
	if level == "" {
		level = os.Getenv("BUNDLENUDGE_LOG")
	}
	if level == "" {
		level = "info"
	}
	logLevel, ok := levelMap[strings.ToLower(level)]
	if !ok {
		valid := slices.Sorted(maps.Keys(levelMap))
		return nil, fmt.Errorf("invalid log level: %s; supported: %s", level, strings.Join(valid, ", "))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	// Also route the legacy log package through the JSON handler at the
	// same level.
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(logLevel)
	return logger, nil
}
