// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package sdk

import (
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultCrashWindow    = 10 * time.Second
	DefaultCrashThreshold = 3
)

// crashState is the detector's verification window state machine. Both the
// health-passed and app-ready flags must be raised before a window resolves
// healthy; surviving the window without exercising application logic is not
// proof of a good bundle.
type crashState int

const (
	crashIdle crashState = iota
	crashWaitingBoth
	crashWaitingHealth // app ready seen, health outstanding
	crashWaitingReady  // health passed, app ready outstanding
	crashVerified
	crashCrashed
)

// CrashDetector watches a short window after an update is applied and counts
// abnormal process exits. Reaching the threshold inside the window resolves
// the window as crashed and hands control to the rollback path.
type CrashDetector struct {
	mu    sync.Mutex
	store *MetadataStore
	log   *slog.Logger

	window    time.Duration
	threshold int

	state crashState
	timer *time.Timer

	onCrashed func(RollbackReason)
	onHealthy func()
}

func NewCrashDetector(store *MetadataStore, log *slog.Logger, window time.Duration, threshold int) *CrashDetector {
	if window <= 0 {
		window = DefaultCrashWindow
	}
	if threshold <= 0 {
		threshold = DefaultCrashThreshold
	}
	return &CrashDetector{
		store:     store,
		log:       log,
		window:    window,
		threshold: threshold,
		state:     crashIdle,
	}
}

// StartVerificationWindow arms the window timer and resets the persisted
// crash counter. Any previous window is abandoned.
func (d *CrashDetector) StartVerificationWindow() error {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.state = crashWaitingBoth
	d.timer = time.AfterFunc(d.window, d.expireWindow)
	d.mu.Unlock()

	return d.store.Update(func(md *StoredMetadata) {
		md.CrashCount = 0
		md.WindowDeadline = time.Now().Add(d.window).UnixMilli()
		md.VerificationState = VerificationPending
	})
}

// resumeVerificationWindow rearms the timer after a mid-window process
// restart without resetting the persisted crash counter, so repeated crashes
// still accumulate toward the threshold. Only the time left until the
// persisted deadline is rearmed; a deadline already behind us closes the
// window instead.
func (d *CrashDetector) resumeVerificationWindow() {
	remaining := d.window
	if deadline := d.store.Get().WindowDeadline; deadline > 0 {
		remaining = time.Until(time.UnixMilli(deadline))
	}
	if remaining <= 0 {
		d.closeWindow()
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.state = crashWaitingBoth
	d.timer = time.AfterFunc(remaining, d.expireWindow)
}

// CheckForCrash is invoked by the host on process start. When the previous
// session ended abnormally during an open verification window, the crash
// counter advances; breaching the threshold resolves the window as crashed.
// The returned flag reports whether a rollback was triggered.
func (d *CrashDetector) CheckForCrash(abnormalExit bool) (bool, error) {
	if !abnormalExit {
		return false, nil
	}
	md := d.store.Get()
	switch md.VerificationState {
	case VerificationPending, VerificationHealthPassed, VerificationAppReady:
	default:
		// Crash outside a verification window - not ours to judge.
		return false, nil
	}
	if md.WindowDeadline > 0 && time.Now().UnixMilli() > md.WindowDeadline {
		// The window lapsed while the process was down; this crash belongs
		// to the running bundle, not to the update under verification.
		d.closeWindow()
		return false, nil
	}

	count := md.CrashCount + 1
	if err := d.store.Update(func(md *StoredMetadata) {
		md.CrashCount = count
		md.LastCrashTime = time.Now().Unix()
	}); err != nil {
		return false, err
	}
	d.log.Warn("crash recorded during verification window", "count", count, "threshold", d.threshold)

	if count < d.threshold {
		return false, nil
	}

	d.mu.Lock()
	if d.state == crashVerified || d.state == crashCrashed {
		d.mu.Unlock()
		return false, nil
	}
	d.state = crashCrashed
	if d.timer != nil {
		d.timer.Stop()
	}
	cb := d.onCrashed
	d.mu.Unlock()

	if cb != nil {
		cb(RollbackCrashDetected)
	}
	return true, nil
}

// NotifyHealthPassed raises the health flag. The window resolves healthy only
// once NotifyAppReady has fired as well.
func (d *CrashDetector) NotifyHealthPassed() {
	d.notify(crashWaitingReady, crashWaitingHealth, VerificationHealthPassed)
}

// NotifyAppReady raises the app-ready flag, the second half of the barrier.
func (d *CrashDetector) NotifyAppReady() {
	d.notify(crashWaitingHealth, crashWaitingReady, VerificationAppReady)
}

// notify advances the two-of-two barrier: from WaitingBoth to the
// intermediate state, or from the complementary intermediate state to
// Verified.
func (d *CrashDetector) notify(intermediate, complement crashState, persisted VerificationState) {
	d.mu.Lock()
	var healthyCb func()
	switch d.state {
	case crashWaitingBoth:
		d.state = intermediate
	case complement:
		d.state = crashVerified
		if d.timer != nil {
			d.timer.Stop()
		}
		healthyCb = d.onHealthy
	default:
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	if err := d.store.Update(func(md *StoredMetadata) {
		md.VerificationState = persisted
	}); err != nil {
		d.log.Error("failed to persist verification state", "error", err)
	}
	if healthyCb != nil {
		healthyCb()
	}
}

func (d *CrashDetector) expireWindow() {
	d.mu.Lock()
	switch d.state {
	case crashWaitingBoth, crashWaitingHealth, crashWaitingReady:
		// Neither crashed nor fully verified: the window simply closes.
		// The previous version stays available until MarkUpdateVerified.
		d.state = crashIdle
		d.mu.Unlock()
		d.closeWindow()
		d.log.Warn("verification window expired without both health signals")
	default:
		d.mu.Unlock()
	}
}

// closeWindow persists the end of an unresolved window so a later boot never
// mistakes a stale `pending` record for an open one.
func (d *CrashDetector) closeWindow() {
	if err := d.store.Update(func(md *StoredMetadata) {
		md.WindowDeadline = 0
		md.VerificationState = VerificationNone
	}); err != nil {
		d.log.Error("failed to persist verification window close", "error", err)
	}
}

func (d *CrashDetector) isVerified() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == crashVerified
}
