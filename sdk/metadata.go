// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const partialFileSuffix = "..part"

// VerificationState tracks how far the currently running bundle has
// progressed through its verification window.
type VerificationState string

const (
	VerificationNone         VerificationState = "none"
	VerificationPending      VerificationState = "pending"
	VerificationHealthPassed VerificationState = "health-passed"
	VerificationAppReady     VerificationState = "app-ready"
	VerificationVerified     VerificationState = "verified"
)

// StoredMetadata is the per-device record the SDK persists between process
// restarts. PreviousVersion is populated only when a new bundle gets applied;
// rollback always targets it and nothing else.
type StoredMetadata struct {
	DeviceId           string            `json:"deviceId"`
	AccessToken        string            `json:"accessToken,omitempty"`
	CurrentVersion     string            `json:"currentVersion,omitempty"`
	CurrentVersionHash string            `json:"currentVersionHash,omitempty"`
	PreviousVersion    string            `json:"previousVersion,omitempty"`
	PendingVersion     string            `json:"pendingVersion,omitempty"`
	PendingUpdate      bool              `json:"pendingUpdate"`
	CrashCount         int               `json:"crashCount"`
	LastCrashTime      int64             `json:"lastCrashTime,omitempty"`
	// WindowDeadline is the verification window's end as Unix milliseconds.
	// Crashes after it never count toward the threshold, no matter how long
	// the process was down.
	WindowDeadline int64 `json:"windowDeadline,omitempty"`
	VerificationState  VerificationState `json:"verificationState"`
	BundleHashes       map[string]string `json:"bundleHashes,omitempty"`
}

// MetadataStore persists StoredMetadata as a JSON file, replaced atomically
// on every write. A single SDK instance owns one store; there is no
// cross-process locking.
type MetadataStore struct {
	mu   sync.Mutex
	path string
	md   StoredMetadata
}

var ErrNoPreviousVersion = errors.New("no previous version to roll back to")

// OpenMetadataStore loads the record from path, creating a fresh one with a
// generated device id on first SDK initialization.
func OpenMetadataStore(path string) (*MetadataStore, error) {
	s := &MetadataStore{path: path}
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.md = StoredMetadata{
			DeviceId:          uuid.New().String(),
			VerificationState: VerificationNone,
			BundleHashes:      map[string]string{},
		}
		return s, s.persist()
	} else if err != nil {
		return nil, fmt.Errorf("unable to read device metadata: %w", err)
	}
	if err := json.Unmarshal(content, &s.md); err != nil {
		return nil, fmt.Errorf("unable to parse device metadata: %w", err)
	}
	if s.md.BundleHashes == nil {
		s.md.BundleHashes = map[string]string{}
	}
	return s, nil
}

// Get returns a snapshot of the stored record.
func (s *MetadataStore) Get() StoredMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *MetadataStore) snapshot() StoredMetadata {
	md := s.md
	md.BundleHashes = make(map[string]string, len(s.md.BundleHashes))
	for k, v := range s.md.BundleHashes {
		md.BundleHashes[k] = v
	}
	return md
}

// Update applies mutate to the record under the store lock and persists the
// result.
func (s *MetadataStore) Update(mutate func(*StoredMetadata)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.md)
	return s.persist()
}

// SetPending records a downloaded-but-not-applied bundle and its hash.
func (s *MetadataStore) SetPending(version, hash string) error {
	return s.Update(func(md *StoredMetadata) {
		md.PendingVersion = version
		md.PendingUpdate = true
		md.BundleHashes[version] = hash
	})
}

// Apply promotes the pending bundle: the running version becomes the
// previous (rollback target), the pending one becomes current, and a new
// verification window begins.
func (s *MetadataStore) Apply() (StoredMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.md.PendingVersion == "" {
		return s.snapshot(), errors.New("no pending version to apply")
	}
	s.md.PreviousVersion = s.md.CurrentVersion
	s.md.CurrentVersion = s.md.PendingVersion
	s.md.CurrentVersionHash = s.md.BundleHashes[s.md.PendingVersion]
	s.md.PendingVersion = ""
	s.md.PendingUpdate = false
	s.md.CrashCount = 0
	s.md.WindowDeadline = 0
	s.md.VerificationState = VerificationPending
	return s.snapshot(), s.persist()
}

// Rollback swaps the current and previous versions and clears any pending
// update. Callers must check for a previous version first; the swap itself
// never invents one.
func (s *MetadataStore) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.md.PreviousVersion == "" {
		return ErrNoPreviousVersion
	}
	s.md.CurrentVersion, s.md.PreviousVersion = s.md.PreviousVersion, s.md.CurrentVersion
	s.md.CurrentVersionHash = s.md.BundleHashes[s.md.CurrentVersion]
	s.md.PendingVersion = ""
	s.md.PendingUpdate = false
	s.md.CrashCount = 0
	s.md.WindowDeadline = 0
	s.md.VerificationState = VerificationNone
	return s.persist()
}

// ClearPreviousVersion commits the running bundle permanently, preventing a
// later rollback to a stale version.
func (s *MetadataStore) ClearPreviousVersion() error {
	return s.Update(func(md *StoredMetadata) {
		md.PreviousVersion = ""
		md.WindowDeadline = 0
		md.VerificationState = VerificationVerified
	})
}

func (s *MetadataStore) SetAccessToken(token string) error {
	return s.Update(func(md *StoredMetadata) {
		md.AccessToken = token
	})
}

func (s *MetadataStore) persist() error {
	content, err := json.Marshal(s.md)
	if err != nil {
		return fmt.Errorf("unable to marshal device metadata: %w", err)
	}
	partial := s.path + partialFileSuffix
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return err
	}
	if fd, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640); err != nil {
		return err
	} else if _, err = fd.Write(content); err != nil {
		_ = fd.Close()
		return err
	} else if err = fd.Sync(); err != nil {
		_ = fd.Close()
		return err
	} else if err = fd.Close(); err != nil {
		return err
	}
	return os.Rename(partial, s.path)
}
