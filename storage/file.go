// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package storage

import (
	"bufio"
	"crypto/rand"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
)

const (
	// Global files/dirs
	AuthDir    = "auth"
	BundlesDir = "bundles"
	DbFile     = "db.sqlite"
	DevicesDir = "devices"

	partialFileSuffix = "..part"

	// Auth files
	HmacSecretFile = "hmac.secret"
	SigningKeyFile = "manifest.key"
	SigningPubFile = "manifest.pub"

	// Per device files
	EventsPrefix = "events"
)

type FsConfig string

func (c FsConfig) RootDir() string {
	return string(c)
}

func (c FsConfig) DbFile() string {
	return filepath.Join(string(c), DbFile)
}

func (c FsConfig) AuthDir() string {
	return filepath.Join(string(c), AuthDir)
}

func (c FsConfig) BundlesDir() string {
	return filepath.Join(string(c), BundlesDir)
}

func (c FsConfig) DevicesDir() string {
	return filepath.Join(string(c), DevicesDir)
}

type FsHandle struct {
	Config FsConfig

	Auth    AuthFsHandle
	Bundles BundlesFsHandle
	Devices DevicesFsHandle
}

func NewFs(root string) (*FsHandle, error) {
	fs := &FsHandle{Config: FsConfig(root)}
	fs.Auth.root = fs.Config.AuthDir()
	fs.Bundles.root = fs.Config.BundlesDir()
	fs.Devices.root = fs.Config.DevicesDir()

	for _, h := range []struct {
		handle baseFsHandle
		mode   os.FileMode
	}{
		{fs.Auth.baseFsHandle, 0o700},
		{fs.Bundles.baseFsHandle, 0o744},
		{fs.Devices.baseFsHandle, 0o740},
	} {
		if err := h.handle.mkdirs(h.mode, true); err != nil {
			return nil, fmt.Errorf("unable to initialize file storage: %w", err)
		}
	}
	return fs, nil
}

type AuthFsHandle struct {
	baseFsHandle
}

func (s AuthFsHandle) InitHmacSecret() error {
	if _, err := s.readFile(HmacSecretFile, false); err == nil {
		return fmt.Errorf("hmac secret exists at: %s", s.FilePath(HmacSecretFile))
	}

	secret := make([]byte, 64)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("generating HMAC secret: %w", err)
	}
	if err := s.writeFile(HmacSecretFile, string(secret), 0o640); err != nil {
		return fmt.Errorf("storing HMAC secret: %w", err)
	}
	return nil
}

func (s AuthFsHandle) GetHmacSecret() ([]byte, error) {
	content, err := s.readFile(HmacSecretFile, false)
	if err != nil {
		return nil, err
	}
	return []byte(content), nil
}

func (s AuthFsHandle) FilePath(name string) string {
	return filepath.Join(s.root, name)
}

func (s AuthFsHandle) ReadFile(name string) (string, error) {
	return s.readFile(name, false)
}

func (s AuthFsHandle) WriteFile(name, content string) error {
	return s.writeFile(name, content, 0o600)
}

type BundlesFsHandle struct {
	baseFsHandle
}

func (s BundlesFsHandle) FilePath(appId, version string) string {
	return filepath.Join(s.root, appId, version+".bundle")
}

func (s BundlesFsHandle) WriteBundle(appId, version string, content []byte) error {
	h := baseFsHandle{root: filepath.Join(s.root, appId)}
	if err := h.mkdirs(0o744, true); err != nil {
		return fmt.Errorf("unable to create bundle storage for app %s: %w", appId, err)
	}
	if err := h.writeFile(version+".bundle", string(content), 0o644); err != nil {
		return fmt.Errorf("error writing bundle %s for app %s: %w", version, appId, err)
	}
	return nil
}

func (s BundlesFsHandle) ReadBundle(appId, version string) ([]byte, error) {
	h := baseFsHandle{root: filepath.Join(s.root, appId)}
	content, err := h.readFile(version+".bundle", false)
	if err != nil {
		return nil, fmt.Errorf("error reading bundle %s for app %s: %w", version, appId, err)
	}
	return []byte(content), nil
}

type DevicesFsHandle struct {
	baseFsHandle
}

func (s DevicesFsHandle) ReadFile(uuid, name string) (string, error) {
	h, _ := s.deviceLocalHandle(uuid, false)
	content, err := h.readFile(name, true)
	if err != nil {
		err = fmt.Errorf("unexpected error reading file %s for device %s: %w", name, uuid, err)
	}
	return content, err
}

func (s DevicesFsHandle) AppendFile(uuid, name, content string) error {
	if h, err := s.deviceLocalHandle(uuid, true); err != nil {
		return err
	} else if err = h.appendFile(name, content, 0o744); err != nil {
		return fmt.Errorf("error writing file %s for device %s: %w", name, uuid, err)
	}
	return nil
}

func (s DevicesFsHandle) ListFiles(uuid, prefix string, sortByModTime bool) ([]string, error) {
	h, _ := s.deviceLocalHandle(uuid, false)
	names, err := h.matchFiles(prefix, sortByModTime)
	if err != nil {
		err = fmt.Errorf("error listing %s files for device %s: %w", prefix, uuid, err)
	}
	return names, err
}

func (s DevicesFsHandle) ReadFileLines(uuid, name string) iter.Seq2[string, error] {
	h, _ := s.deviceLocalHandle(uuid, false)
	return h.readFileLines(name, true)
}

func (s DevicesFsHandle) RolloverFiles(uuid, prefix string, max int) error {
	if h, err := s.deviceLocalHandle(uuid, true); err != nil {
		return err
	} else if err = h.rolloverFiles(prefix, max); err != nil {
		return fmt.Errorf("error rolling over %s files for device %s: %w", prefix, uuid, err)
	}
	return nil
}

func (s DevicesFsHandle) deviceLocalHandle(uuid string, forUpdate bool) (h baseFsHandle, err error) {
	h.root = filepath.Join(s.root, uuid)
	if forUpdate {
		if err = h.mkdirs(0o744, true); err != nil {
			err = fmt.Errorf("unable to create file storage for device %s: %w", uuid, err)
		}
	}
	return
}

type baseFsHandle struct {
	root string
}

func (s baseFsHandle) mkdirs(mode os.FileMode, ignoreExists bool) error {
	if ignoreExists {
		return os.MkdirAll(s.root, mode)
	} else {
		return os.Mkdir(s.root, mode)
	}
}

func (s baseFsHandle) readFile(name string, ignoreNotExist bool) (string, error) {
	if content, err := os.ReadFile(filepath.Join(s.root, name)); err == nil {
		return string(content), nil
	} else if ignoreNotExist && errors.Is(err, os.ErrNotExist) {
		return "", nil
	} else {
		return "", err
	}
}

func (s baseFsHandle) readFileLines(name string, ignoreNotExist bool) iter.Seq2[string, error] {
	// memory efficient way to read lines from a potentially large file
	return func(yield func(string, error) bool) {
		if fd, err := os.OpenFile(filepath.Join(s.root, name), os.O_RDONLY, 0); err != nil {
			if !ignoreNotExist || !errors.Is(err, os.ErrNotExist) {
				yield("", err)
			}
		} else {
			defer fd.Close()                // nolint:errcheck
			scanner := bufio.NewScanner(fd) // line reader
			for scanner.Scan() {
				if !yield(scanner.Text(), nil) {
					return
				}
			}
			if err = scanner.Err(); err != nil {
				yield("", err)
			}
		}
	}
}

func (s baseFsHandle) writeFile(name, content string, mode os.FileMode) error {
	path := filepath.Join(s.root, name)
	partial := filepath.Join(s.root, name+partialFileSuffix)
	if fd, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode); err != nil {
		return err
	} else if _, err = fd.WriteString(content); err != nil {
		_ = fd.Close()
		return err
	} else if err = fd.Sync(); err != nil {
		_ = fd.Close()
		return err
	} else if err = fd.Close(); err != nil {
		return err
	} else {
		return os.Rename(partial, path)
	}
}

func (s baseFsHandle) appendFile(name, content string, mode os.FileMode) error {
	// O_APPEND + O_SYNC on Linux warrants that concurrent file appends up to 1MB are serialized.
	fd, err := os.OpenFile(filepath.Join(s.root, name),
		os.O_CREATE|os.O_APPEND|syscall.O_SYNC|os.O_WRONLY, mode)
	if err == nil {
		_, err = fd.Write([]byte(content))
		if err != nil {
			_ = fd.Close()
		} else {
			err = fd.Close()
		}
	}
	return err
}

func (s baseFsHandle) rolloverFiles(prefix string, max int) error {
	names, err := s.matchFiles(prefix, true)
	if err == nil {
		for i := 0; i < len(names)-max; i++ {
			if err = os.Remove(filepath.Join(s.root, names[i])); err != nil {
				break
			}
		}
	}
	return err
}

func (s baseFsHandle) matchFiles(prefix string, sortByModTime bool) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		if info, err := entry.Info(); err != nil {
			return nil, err
		} else {
			name := info.Name()
			if strings.HasSuffix(name, partialFileSuffix) {
				// Filter out partial files - uploads in progress or data corruptions
				continue
			} else if len(prefix) == 0 || strings.HasPrefix(name, prefix) {
				infos = append(infos, info)
			}
		}
	}
	if sortByModTime {
		slices.SortFunc(infos, func(a, b os.FileInfo) int {
			return int(a.ModTime().UnixMilli() - b.ModTime().UnixMilli())
		})
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}
