// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package sdk

import (
	"fmt"
	"log/slog"
)

// RollbackReason tags every rollback event for telemetry.
type RollbackReason string

const (
	RollbackCrashDetected   RollbackReason = "crash_detected"
	RollbackRouteFailure    RollbackReason = "route_failure"
	RollbackServerTriggered RollbackReason = "server_triggered"
	RollbackManual          RollbackReason = "manual"
)

// HostController is the host application's side of the contract: restarting
// the process and reporting whether the previous session died inside a
// verification window.
type HostController interface {
	// Restart reloads the application host process. userInitiated is false
	// for automatic rollbacks.
	Restart(userInitiated bool) error
	// CrashedLastSession reports whether the previous session exited
	// abnormally.
	CrashedLastSession() bool
}

// RollbackManager orchestrates reverting to the previous bundle version.
type RollbackManager struct {
	store     *MetadataStore
	telemetry *TelemetryReporter
	host      HostController
	log       *slog.Logger

	// onReported fires after a successful storage swap, unless there was no
	// current version worth telling the host about.
	onReported func(reason RollbackReason, fromVersion string)
}

func NewRollbackManager(store *MetadataStore, telemetry *TelemetryReporter, host HostController,
	log *slog.Logger, onReported func(RollbackReason, string)) *RollbackManager {
	return &RollbackManager{
		store:      store,
		telemetry:  telemetry,
		host:       host,
		log:        log,
		onReported: onReported,
	}
}

// CanRollback reports whether a previous version exists to revert to.
func (m *RollbackManager) CanRollback() bool {
	return m.store.Get().PreviousVersion != ""
}

// Rollback reverts to the previous bundle version. Calling it with no
// previous version is a host integration bug and fails loudly. Telemetry
// delivery is queued and never blocks or fails the reversion; the host
// restart comes last.
func (m *RollbackManager) Rollback(reason RollbackReason) error {
	md := m.store.Get()
	if md.PreviousVersion == "" {
		return fmt.Errorf("rollback(%s): %w", reason, ErrNoPreviousVersion)
	}
	from := md.CurrentVersion
	rolledBackTo := md.PreviousVersion

	if err := m.store.Rollback(); err != nil {
		return fmt.Errorf("rollback(%s): %w", reason, err)
	}
	m.log.Warn("rolled back bundle", "reason", reason, "from", from, "to", rolledBackTo)

	m.telemetry.Report(EventRollbackTriggered, map[string]any{
		"reason":       string(reason),
		"rolledBackTo": rolledBackTo,
	})

	if from != "" && m.onReported != nil {
		m.onReported(reason, from)
	}

	if err := m.host.Restart(false); err != nil {
		return fmt.Errorf("rollback(%s): host restart failed: %w", reason, err)
	}
	return nil
}

// MarkUpdateVerified commits the running bundle permanently by dropping the
// rollback target.
func (m *RollbackManager) MarkUpdateVerified() error {
	return m.store.ClearPreviousVersion()
}
