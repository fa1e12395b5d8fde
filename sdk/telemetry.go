// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package sdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	EventRollbackTriggered = "rollback_triggered"
	EventUpdateApplied     = "update_applied"
	EventUpdateVerified    = "update_verified"
	EventRouteResult       = "route_result"
)

// TelemetryEvent is the wire body for POST /v1/telemetry.
type TelemetryEvent struct {
	DeviceId  string         `json:"deviceId"`
	AppId     string         `json:"appId"`
	EventType string         `json:"eventType"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TelemetryReporter delivers events best-effort from a background worker.
// Nothing on the update or rollback path ever waits on, or fails because of,
// telemetry.
type TelemetryReporter struct {
	url    string
	appId  string
	store  *MetadataStore
	client *http.Client
	log    *slog.Logger

	queue chan TelemetryEvent
	wg    sync.WaitGroup
	once  sync.Once
}

func NewTelemetryReporter(serverURL, appId string, store *MetadataStore, client *http.Client, log *slog.Logger) *TelemetryReporter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	r := &TelemetryReporter{
		url:    serverURL + "/v1/telemetry",
		appId:  appId,
		store:  store,
		client: client,
		log:    log,
		queue:  make(chan TelemetryEvent, 32),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Report enqueues an event without blocking. A full queue drops the event;
// telemetry is advisory.
func (r *TelemetryReporter) Report(eventType string, metadata map[string]any) {
	md := r.store.Get()
	evt := TelemetryEvent{
		DeviceId:  md.DeviceId,
		AppId:     r.appId,
		EventType: eventType,
		Metadata:  metadata,
	}
	select {
	case r.queue <- evt:
	default:
		r.log.Warn("telemetry queue full, dropping event", "event", eventType)
	}
}

// Close drains the queue and stops the worker.
func (r *TelemetryReporter) Close() {
	r.once.Do(func() { close(r.queue) })
	r.wg.Wait()
}

func (r *TelemetryReporter) worker() {
	defer r.wg.Done()
	for evt := range r.queue {
		if err := r.post(evt); err != nil {
			// Swallowed: a lost telemetry event never surfaces to the host.
			r.log.Warn("failed to deliver telemetry event", "event", evt.EventType, "error", err)
		}
	}
}

func (r *TelemetryReporter) post(evt TelemetryEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := r.store.Get().AccessToken; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set(HeaderDeviceId, evt.DeviceId)
	req.Header.Set(HeaderSdkVersion, Version)
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			r.log.Warn("failed to close telemetry response body", "error", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telemetry endpoint returned %d: %s", resp.StatusCode, string(buf))
	}
	return nil
}
