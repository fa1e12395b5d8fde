// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package sdk

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	jose "gopkg.in/go-jose/go-jose.v2"
)

// ReleaseManifest is the update-check response: where to fetch the bundle,
// its integrity hash, and the health signals the server wants verified for
// this release.
type ReleaseManifest struct {
	Version           string             `json:"version"`
	BundleUrl         string             `json:"bundleUrl"`
	BundleHash        string             `json:"bundleHash"`
	Channel           string             `json:"channel,omitempty"`
	CriticalRoutes    []CriticalRoute    `json:"criticalRoutes,omitempty"`
	CriticalEvents    []CriticalEvent    `json:"criticalEvents,omitempty"`
	CriticalEndpoints []CriticalEndpoint `json:"criticalEndpoints,omitempty"`
}

// UpdateClient fetches release manifests and bundles. When a signing key is
// configured, update-check responses are JWS envelopes and an unverifiable
// manifest is rejected outright.
type UpdateClient struct {
	serverURL string
	appId     string
	channel   string
	bundleDir string
	store     *MetadataStore
	client    *http.Client
	log       *slog.Logger
	sigKey    ed25519.PublicKey
}

func NewUpdateClient(serverURL, appId, channel, bundleDir string, store *MetadataStore,
	client *http.Client, log *slog.Logger, sigKey ed25519.PublicKey) *UpdateClient {
	if client == nil {
		client = &http.Client{}
	}
	return &UpdateClient{
		serverURL: serverURL,
		appId:     appId,
		channel:   channel,
		bundleDir: bundleDir,
		store:     store,
		client:    client,
		log:       log,
		sigKey:    sigKey,
	}
}

// Check asks the server for a newer release. A nil manifest means the device
// is already current.
func (u *UpdateClient) Check(ctx context.Context) (*ReleaseManifest, error) {
	md := u.store.Get()
	q := url.Values{}
	q.Set("app", u.appId)
	q.Set("channel", u.channel)
	q.Set("version", md.CurrentVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.serverURL+"/v1/update-check?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if md.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+md.AccessToken)
	}
	req.Header.Set(HeaderDeviceId, md.DeviceId)
	req.Header.Set(HeaderSdkVersion, Version)
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("update check failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			u.log.Warn("failed to close update-check response body", "error", err)
		}
	}()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("update check returned %d: %s", resp.StatusCode, string(buf))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return u.parseManifest(body)
}

func (u *UpdateClient) parseManifest(body []byte) (*ReleaseManifest, error) {
	var envelope struct {
		Manifest string `json:"manifest"`
	}
	payload := body
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Manifest != "" {
		sig, err := jose.ParseSigned(envelope.Manifest)
		if err != nil {
			return nil, fmt.Errorf("malformed manifest signature: %w", err)
		}
		if u.sigKey == nil {
			return nil, fmt.Errorf("server sent a signed manifest but no signing key is configured")
		}
		payload, err = sig.Verify(u.sigKey)
		if err != nil {
			return nil, fmt.Errorf("manifest signature verification failed: %w", err)
		}
	} else if u.sigKey != nil {
		return nil, fmt.Errorf("signing key configured but server sent an unsigned manifest")
	}

	var m ReleaseManifest
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("unable to parse release manifest: %w", err)
	}
	if m.Version == "" || m.BundleUrl == "" || m.BundleHash == "" {
		return nil, fmt.Errorf("release manifest missing version, bundleUrl or bundleHash")
	}
	return &m, nil
}

// Download fetches the bundle, verifies its SHA-256 against the manifest and
// records it as the pending version. The file lands in the bundle directory
// under a partial name until the hash checks out.
func (u *UpdateClient) Download(ctx context.Context, m *ReleaseManifest) (string, error) {
	if err := os.MkdirAll(u.bundleDir, 0o750); err != nil {
		return "", err
	}
	dest := filepath.Join(u.bundleDir, m.Version+".bundle")
	partial := dest + partialFileSuffix

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.BundleUrl, nil)
	if err != nil {
		return "", err
	}
	if token := u.store.Get().AccessToken; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set(HeaderDeviceId, u.store.Get().DeviceId)
	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("bundle download failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			u.log.Warn("failed to close bundle response body", "error", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bundle download returned %d", resp.StatusCode)
	}

	fd, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return "", err
	}
	hasher := sha256.New()
	if _, err = io.Copy(io.MultiWriter(fd, hasher), resp.Body); err != nil {
		_ = fd.Close()
		_ = os.Remove(partial)
		return "", fmt.Errorf("bundle download interrupted: %w", err)
	}
	if err = fd.Close(); err != nil {
		return "", err
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if sum != m.BundleHash {
		_ = os.Remove(partial)
		return "", fmt.Errorf("bundle hash mismatch for %s: got %s, want %s", m.Version, sum, m.BundleHash)
	}
	if err = os.Rename(partial, dest); err != nil {
		return "", err
	}

	if err = u.store.SetPending(m.Version, m.BundleHash); err != nil {
		return "", err
	}
	u.log.Info("bundle downloaded", "version", m.Version, "path", dest)
	return dest, nil
}

// BundlePath returns where the bundle for a version lives on disk.
func (u *UpdateClient) BundlePath(version string) string {
	return filepath.Join(u.bundleDir, version+".bundle")
}
