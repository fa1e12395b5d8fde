// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

// Package sdk implements the device-side update lifecycle for BundleNudge:
// checking for and downloading bundles, watching a verification window after
// an update is applied, and automatically reverting to the previous bundle
// when the new one proves unstable.
package sdk

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Version is reported to the server on every request.
const Version = "1.0.0"

// Headers devices send so the server can track the fleet.
const (
	HeaderDeviceId   = "X-Device-Id"
	HeaderSdkVersion = "X-Sdk-Version"
)

// Callbacks are the host application's hooks. Each fires at most once per
// verification window.
type Callbacks struct {
	OnRollback       func(reason RollbackReason, fromVersion string)
	OnVerified       func()
	OnRouteResult    func(routeId string, success bool, statusCode int)
	OnEndpointFailed func(endpoint CriticalEndpoint, statusCode int)
}

type Config struct {
	ServerURL string
	AppId     string
	Channel   string
	// DataDir holds the metadata record and downloaded bundles.
	DataDir string
	Host    HostController
	// HTTPClient is the host's outgoing client; the route monitor wraps its
	// transport during verification windows and restores it afterwards.
	HTTPClient *http.Client

	Events    []CriticalEvent
	Endpoints []CriticalEndpoint
	// SigningKey, when set, requires update-check manifests to carry a valid
	// JWS signature from the server.
	SigningKey ed25519.PublicKey

	CrashWindow    time.Duration
	CrashThreshold int
	RouteTimeout   time.Duration

	Callbacks Callbacks
	Log       *slog.Logger
}

// Client is the single per-process SDK instance coordinating one metadata
// store and at most one active verification window.
type Client struct {
	cfg       Config
	log       *slog.Logger
	store     *MetadataStore
	detector  *CrashDetector
	health    *HealthMonitor
	rollback  *RollbackManager
	telemetry *TelemetryReporter
	updates   *UpdateClient

	mu         sync.Mutex
	routes     *RouteMonitor
	routesOK   bool
	detectorOK bool
	finalized  bool
	rolledBack bool
}

func New(cfg Config) (*Client, error) {
	if cfg.ServerURL == "" || cfg.AppId == "" {
		return nil, fmt.Errorf("sdk: ServerURL and AppId are required")
	}
	if cfg.Host == nil {
		return nil, fmt.Errorf("sdk: a HostController is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("sdk: DataDir is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	log := cfg.Log.With("app", cfg.AppId)

	store, err := OpenMetadataStore(filepath.Join(cfg.DataDir, "metadata.json"))
	if err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg, log: log, store: store}
	c.telemetry = NewTelemetryReporter(cfg.ServerURL, cfg.AppId, store, nil, log)
	c.rollback = NewRollbackManager(store, c.telemetry, cfg.Host, log, cfg.Callbacks.OnRollback)
	c.detector = NewCrashDetector(store, log, cfg.CrashWindow, cfg.CrashThreshold)
	c.detector.onCrashed = c.triggerRollback
	c.detector.onHealthy = c.detectorHealthy
	c.health = NewHealthMonitor(cfg.Events, cfg.Endpoints, c.detector, nil, cfg.Callbacks.OnEndpointFailed)
	c.updates = NewUpdateClient(cfg.ServerURL, cfg.AppId, cfg.Channel,
		filepath.Join(cfg.DataDir, "bundles"), store, cfg.HTTPClient, log, cfg.SigningKey)
	return c, nil
}

// Initialize runs the boot-time lifecycle: crash accounting for the previous
// session, then either applying a pending bundle or resuming an open
// verification window.
func (c *Client) Initialize() error {
	crashed, err := c.detector.CheckForCrash(c.cfg.Host.CrashedLastSession())
	if err != nil {
		return err
	}
	if crashed {
		// The rollback path owns the rest of this boot.
		return nil
	}

	md := c.store.Get()
	if md.PendingUpdate {
		return c.beginVerification(true)
	}
	switch md.VerificationState {
	case VerificationPending, VerificationHealthPassed, VerificationAppReady:
		// A crash restarted us mid-window; keep the counter and rearm.
		return c.beginVerification(false)
	}
	return nil
}

// CheckForUpdate asks the server whether a newer release exists for this
// app and channel. Returns nil when the device is current.
func (c *Client) CheckForUpdate(ctx context.Context) (*ReleaseManifest, error) {
	return c.updates.Check(ctx)
}

// DownloadUpdate fetches and hash-verifies the bundle, records it as
// pending, and persists the manifest so the next boot can configure its
// route monitoring from it.
func (c *Client) DownloadUpdate(ctx context.Context, m *ReleaseManifest) (string, error) {
	path, err := c.updates.Download(ctx, m)
	if err != nil {
		return "", err
	}
	if err := c.saveManifest(m); err != nil {
		return "", err
	}
	return path, nil
}

// RestartToApply restarts the host so the pending bundle loads on next boot.
func (c *Client) RestartToApply() error {
	if !c.store.Get().PendingUpdate {
		return fmt.Errorf("no pending update to apply")
	}
	return c.cfg.Host.Restart(true)
}

func (c *Client) beginVerification(apply bool) error {
	md := c.store.Get()
	if apply {
		var err error
		if md, err = c.store.Apply(); err != nil {
			return err
		}
		c.telemetry.Report(EventUpdateApplied, map[string]any{"version": md.CurrentVersion})
	}

	c.mu.Lock()
	c.routesOK = true
	c.detectorOK = false
	c.finalized = false
	c.rolledBack = false
	c.mu.Unlock()

	if apply {
		if err := c.detector.StartVerificationWindow(); err != nil {
			return err
		}
	} else {
		c.detector.resumeVerificationWindow()
	}
	c.health.Reset()

	manifest, err := c.loadManifest(md.CurrentVersion)
	if err != nil {
		c.log.Warn("no manifest for running version, skipping route monitoring",
			"version", md.CurrentVersion, "error", err)
		return nil
	}
	if len(manifest.CriticalRoutes) == 0 {
		return nil
	}

	monitor, err := NewRouteMonitor(c.cfg.HTTPClient, manifest.CriticalRoutes, c.cfg.RouteTimeout,
		c.routesVerified, c.routeFailed, c.routeResult)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.routes = monitor
	c.routesOK = false
	c.mu.Unlock()
	monitor.Start()
	return nil
}

// ReportEvent forwards a lifecycle event to the health monitor.
func (c *Client) ReportEvent(name string) {
	c.health.ReportEvent(name)
}

// ReportEndpoint forwards an HTTP outcome to the health monitor.
func (c *Client) ReportEndpoint(method, url string, status int) {
	c.health.ReportEndpoint(method, url, status)
}

// NotifyAppReady raises the second half of the verification barrier: the
// application exercised its own logic and considers itself up.
func (c *Client) NotifyAppReady() {
	c.detector.NotifyAppReady()
}

// Rollback reverts to the previous bundle on the host's or server's behalf.
// The latch holds only after a completed rollback; a failed attempt leaves
// the client free to try again and returns the failure to the caller.
func (c *Client) Rollback(reason RollbackReason) error {
	c.mu.Lock()
	if c.rolledBack {
		c.mu.Unlock()
		return nil
	}
	c.rolledBack = true
	routes := c.routes
	c.mu.Unlock()

	if routes != nil {
		routes.Stop()
	}
	if err := c.rollback.Rollback(reason); err != nil {
		c.mu.Lock()
		c.rolledBack = false
		c.mu.Unlock()
		return err
	}
	return nil
}

// CanRollback reports whether a previous version exists.
func (c *Client) CanRollback() bool {
	return c.rollback.CanRollback()
}

// Metadata returns a snapshot of the persisted device record.
func (c *Client) Metadata() StoredMetadata {
	return c.store.Get()
}

// Health exposes the monitor for diagnostics (missing events/endpoints).
func (c *Client) Health() *HealthMonitor {
	return c.health
}

// Close stops monitoring and drains telemetry. The metadata store needs no
// teardown.
func (c *Client) Close() {
	c.mu.Lock()
	routes := c.routes
	c.mu.Unlock()
	if routes != nil {
		routes.Stop()
	}
	c.telemetry.Close()
}

func (c *Client) triggerRollback(reason RollbackReason) {
	if !c.rollback.CanRollback() {
		c.log.Error("rollback requested but no previous version exists", "reason", reason)
		return
	}
	if err := c.Rollback(reason); err != nil {
		c.log.Error("automatic rollback failed", "reason", reason, "error", err)
	}
}

func (c *Client) routeResult(routeId string, success bool, status int) {
	c.telemetry.Report(EventRouteResult, map[string]any{
		"route":   routeId,
		"success": success,
		"status":  status,
	})
	if cb := c.cfg.Callbacks.OnRouteResult; cb != nil {
		cb(routeId, success, status)
	}
}

func (c *Client) routeFailed(route CriticalRoute, status int) {
	c.log.Warn("critical route failed", "route", route.Id, "status", status)
	c.triggerRollback(RollbackRouteFailure)
}

func (c *Client) routesVerified() {
	c.mu.Lock()
	c.routesOK = true
	c.mu.Unlock()
	c.maybeFinalize()
}

func (c *Client) detectorHealthy() {
	c.mu.Lock()
	c.detectorOK = true
	c.mu.Unlock()
	c.maybeFinalize()
}

// maybeFinalize commits the update once both the crash detector and the
// route monitor (when configured) have resolved healthy.
func (c *Client) maybeFinalize() {
	c.mu.Lock()
	if c.finalized || c.rolledBack || !c.routesOK || !c.detectorOK {
		c.mu.Unlock()
		return
	}
	c.finalized = true
	routes := c.routes
	c.routes = nil
	c.mu.Unlock()

	if routes != nil {
		routes.Stop()
	}
	if err := c.rollback.MarkUpdateVerified(); err != nil {
		c.log.Error("failed to commit verified update", "error", err)
		return
	}
	md := c.store.Get()
	c.telemetry.Report(EventUpdateVerified, map[string]any{"version": md.CurrentVersion})
	c.log.Info("update verified", "version", md.CurrentVersion)
	if c.cfg.Callbacks.OnVerified != nil {
		c.cfg.Callbacks.OnVerified()
	}
}

func (c *Client) manifestPath(version string) string {
	return filepath.Join(c.cfg.DataDir, "bundles", version+".manifest.json")
}

func (c *Client) saveManifest(m *ReleaseManifest) error {
	content, err := json.Marshal(m)
	if err != nil {
		return err
	}
	path := c.manifestPath(m.Version)
	partial := path + partialFileSuffix
	if err := os.WriteFile(partial, content, 0o640); err != nil {
		return err
	}
	return os.Rename(partial, path)
}

func (c *Client) loadManifest(version string) (*ReleaseManifest, error) {
	content, err := os.ReadFile(c.manifestPath(version))
	if err != nil {
		return nil, err
	}
	var m ReleaseManifest
	if err := json.Unmarshal(content, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
