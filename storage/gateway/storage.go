// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package gateway

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bundlenudge/bundlenudge/storage"
)

type (
	// Convenience aliases for importing modules
	DbHandle = storage.DbHandle
	FsHandle = storage.FsHandle

	DeviceTelemetryEvent = storage.DeviceTelemetryEvent
	CriticalConfig       = storage.CriticalConfig
)

var (
	NewDb = storage.NewDb
	NewFs = storage.NewFs
)

const (
	EventsPrefix = storage.EventsPrefix

	SigningKeyFile = storage.SigningKeyFile
	SigningPubFile = storage.SigningPubFile
)

type Storage struct {
	db *DbHandle
	fs *FsHandle

	stmtAppGetByToken stmtAppGetByToken
	stmtDeviceCheckIn stmtDeviceCheckIn
	stmtDeviceCreate  stmtDeviceCreate
	stmtDeviceGet     stmtDeviceGet
	stmtReleaseGet    stmtReleaseGet
	stmtReleaseLatest stmtReleaseLatest

	maxEventFiles int
}

type App struct {
	Id        string
	Name      string
	Tier      string
	CreatedAt int64
}

type Device struct {
	storage Storage

	Uuid            string
	AppId           string
	Deleted         bool
	CreatedAt       int64
	LastSeen        int64
	Channel         string
	CurrentVersion  string
	PreviousVersion string
	SdkVersion      string
}

type Release struct {
	Id             int64
	AppId          string
	Channel        string
	Version        string
	BundleHash     string
	BundleSize     int64
	CriticalConfig CriticalConfig
	CreatedAt      int64
	Enabled        bool
}

func NewStorage(db *storage.DbHandle, fs *storage.FsHandle) (*Storage, error) {
	handle := Storage{
		db:            db,
		fs:            fs,
		maxEventFiles: 20,
	}

	if err := db.InitStmt(
		&handle.stmtAppGetByToken,
		&handle.stmtDeviceCheckIn,
		&handle.stmtDeviceCreate,
		&handle.stmtDeviceGet,
		&handle.stmtReleaseGet,
		&handle.stmtReleaseLatest,
	); err != nil {
		return nil, err
	}

	return &handle, nil
}

// AppGetByToken resolves a device's bearer token to its app. Returns
// (nil, nil) when no app carries the token.
func (s Storage) AppGetByToken(token string) (*App, error) {
	a, err := s.stmtAppGetByToken.run(token)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s Storage) DeviceCreate(uuid, appId, channel, sdkVersion string) (*Device, error) {
	now := time.Now().Unix()
	if err := s.stmtDeviceCreate.run(uuid, appId, channel, sdkVersion, now); err != nil {
		return nil, err
	}

	d := Device{
		storage: s,
		Uuid:    uuid,
		AppId:   appId,

		Deleted:    false,
		CreatedAt:  now,
		LastSeen:   now,
		Channel:    channel,
		SdkVersion: sdkVersion,
	}
	return &d, nil
}

func (s Storage) DeviceGet(uuid string) (*Device, error) {
	d := Device{storage: s, Uuid: uuid}
	if err := s.stmtDeviceGet.run(uuid, &d); err != nil {
		if err == sql.ErrNoRows {
			err = nil
		}
		return nil, err
	}
	return &d, nil
}

// ReleaseLatest returns the newest enabled release for an app's channel,
// or (nil, nil) when the channel has none.
func (s Storage) ReleaseLatest(appId, channel string) (*Release, error) {
	r, err := s.stmtReleaseLatest.run(appId, channel)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s Storage) ReleaseGet(appId, channel, version string) (*Release, error) {
	r, err := s.stmtReleaseGet.run(appId, channel, version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s Storage) ReadBundle(appId, version string) ([]byte, error) {
	return s.fs.Bundles.ReadBundle(appId, version)
}

func (d *Device) CheckIn(channel, currentVersion, previousVersion, sdkVersion string) error {
	now := time.Now().Unix()
	if channel == d.Channel && currentVersion == d.CurrentVersion &&
		previousVersion == d.PreviousVersion && sdkVersion == d.SdkVersion &&
		now-d.LastSeen < 60 {
		// Skip database updating when all fields are the same and last checkin was less than a minute ago.
		return nil
	}
	d.Channel = channel
	d.CurrentVersion = currentVersion
	d.PreviousVersion = previousVersion
	d.SdkVersion = sdkVersion
	d.LastSeen = now
	return d.storage.stmtDeviceCheckIn.run(d.Uuid, channel, currentVersion, previousVersion, sdkVersion, now)
}

// SaveTelemetry appends events to the device's daily telemetry file and
// prunes old files past the retention window.
func (d Device) SaveTelemetry(events []DeviceTelemetryEvent) error {
	name := fmt.Sprintf("%s-%s", EventsPrefix, time.Now().UTC().Format("20060102"))
	for _, evt := range events {
		bytes, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		if err := d.storage.fs.Devices.AppendFile(d.Uuid, name, string(bytes)+"\n"); err != nil {
			return err
		}
	}
	return d.storage.fs.Devices.RolloverFiles(d.Uuid, EventsPrefix, d.storage.maxEventFiles)
}

type stmtAppGetByToken storage.DbStmt

func (s *stmtAppGetByToken) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("AppGetByToken", `
		SELECT id, name, tier, created_at
		FROM apps
		WHERE token = ? AND deleted = false`,
	)
	return
}

func (s *stmtAppGetByToken) run(token string) (*App, error) {
	a := App{}
	err := s.Stmt.QueryRow(token).Scan(&a.Id, &a.Name, &a.Tier, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type stmtDeviceCheckIn storage.DbStmt

func (s *stmtDeviceCheckIn) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("DeviceCheckIn", `
		UPDATE devices
		SET channel=?, current_version=?, previous_version=?, sdk_version=?, last_seen=?
		WHERE uuid = ?`,
	)
	return
}

func (s *stmtDeviceCheckIn) run(uuid, channel, currentVersion, previousVersion, sdkVersion string, lastSeen int64) error {
	_, err := s.Stmt.Exec(channel, currentVersion, previousVersion, sdkVersion, lastSeen, uuid)
	return err
}

type stmtDeviceCreate storage.DbStmt

func (s *stmtDeviceCreate) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("DeviceCreate", `
		INSERT INTO devices(uuid, app_id, channel, sdk_version, created_at, last_seen, deleted)
		VALUES (?, ?, ?, ?, ?, ?, false)`,
	)
	return
}

func (s *stmtDeviceCreate) run(uuid, appId, channel, sdkVersion string, now int64) error {
	_, err := s.Stmt.Exec(uuid, appId, channel, sdkVersion, now, now)
	return err
}

type stmtDeviceGet storage.DbStmt

func (s *stmtDeviceGet) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("DeviceGet", `
		SELECT app_id, deleted, created_at, last_seen, channel, current_version, previous_version, sdk_version
		FROM devices
		WHERE uuid = ?`,
	)
	return
}

func (s *stmtDeviceGet) run(uuid string, d *Device) error {
	return s.Stmt.QueryRow(uuid).Scan(
		&d.AppId, &d.Deleted, &d.CreatedAt, &d.LastSeen,
		&d.Channel, &d.CurrentVersion, &d.PreviousVersion, &d.SdkVersion)
}

func scanRelease(row *sql.Row, r *Release) error {
	var cfg string
	err := row.Scan(
		&r.Id, &r.AppId, &r.Channel, &r.Version,
		&r.BundleHash, &r.BundleSize, &cfg, &r.CreatedAt, &r.Enabled)
	if err != nil {
		return err
	}
	if cfg != "" {
		if err := json.Unmarshal([]byte(cfg), &r.CriticalConfig); err != nil {
			return fmt.Errorf("unable to parse critical config for release %s: %w", r.Version, err)
		}
	}
	return nil
}

type stmtReleaseGet storage.DbStmt

func (s *stmtReleaseGet) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("ReleaseGet", `
		SELECT id, app_id, channel, version, bundle_hash, bundle_size, critical_config, created_at, enabled
		FROM releases
		WHERE app_id = ? AND channel = ? AND version = ?`,
	)
	return
}

func (s *stmtReleaseGet) run(appId, channel, version string) (*Release, error) {
	r := Release{}
	if err := scanRelease(s.Stmt.QueryRow(appId, channel, version), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

type stmtReleaseLatest storage.DbStmt

func (s *stmtReleaseLatest) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("ReleaseLatest", `
		SELECT id, app_id, channel, version, bundle_hash, bundle_size, critical_config, created_at, enabled
		FROM releases
		WHERE app_id = ? AND channel = ? AND enabled = true
		ORDER BY id DESC
		LIMIT 1`,
	)
	return
}

func (s *stmtReleaseLatest) run(appId, channel string) (*Release, error) {
	r := Release{}
	if err := scanRelease(s.Stmt.QueryRow(appId, channel), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
