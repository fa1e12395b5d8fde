// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package api

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bundlenudge/bundlenudge/storage"
)

type (
	OrderBy string

	FsHandle = storage.FsHandle

	CriticalConfig       = storage.CriticalConfig
	DeviceTelemetryEvent = storage.DeviceTelemetryEvent
)

const (
	OrderByDeviceLastSeenDsc OrderBy = "last-seen-desc"
	OrderByDeviceLastSeenAsc OrderBy = "last-seen-asc"
	OrderByDeviceCreatedDsc  OrderBy = "created-at-desc"
	OrderByDeviceCreatedAsc  OrderBy = "created-at-asc"
	OrderByDeviceUuidAsc     OrderBy = "uuid-asc"
	OrderByDeviceUuidDesc    OrderBy = "uuid-desc"
)

var orderByDeviceMap = map[OrderBy]string{
	OrderByDeviceCreatedAsc:  "created_at ASC",
	OrderByDeviceCreatedDsc:  "created_at DESC",
	OrderByDeviceLastSeenAsc: "last_seen ASC",
	OrderByDeviceLastSeenDsc: "last_seen DESC",
	OrderByDeviceUuidAsc:     "uuid ASC",
	OrderByDeviceUuidDesc:    "uuid DESC",
}

var (
	NewDb = storage.NewDb
	NewFs = storage.NewFs

	DbFile = storage.DbFile

	IsDbError             = storage.IsDbError
	ErrDbConstraintUnique = storage.ErrDbConstraintUnique
)

// DeviceListOpts lets you set the order devices will be returned
// by the `List` api
type DeviceListOpts struct {
	AppId   string  `query:"app"      example:"f1c7..."`
	OrderBy OrderBy `query:"order-by" example:"1"    default:"1"`
	Limit   int     `query:"limit"    example:"100"  default:"1000"`
	Offset  int     `query:"offset"   example:"1"    default:"0"`
}

type App struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	Tier      string `json:"tier"`
	Token     string `json:"token,omitempty"`
	CreatedAt int64  `json:"created-at"`
}

type DeviceListItem struct {
	Uuid           string `json:"uuid"`
	AppId          string `json:"app-id"`
	CreatedAt      int64  `json:"created-at"`
	LastSeen       int64  `json:"last-seen"`
	Channel        string `json:"channel"`
	CurrentVersion string `json:"current-version"`
	SdkVersion     string `json:"sdk-version"`
}

type Device struct {
	DeviceListItem

	PreviousVersion string `json:"previous-version"`

	storage Storage
}

type Release struct {
	Id             int64          `json:"id"`
	AppId          string         `json:"app-id"`
	Channel        string         `json:"channel"`
	Version        string         `json:"version"`
	BundleHash     string         `json:"bundle-hash"`
	BundleSize     int64          `json:"bundle-size"`
	CriticalConfig CriticalConfig `json:"critical-config"`
	CreatedAt      int64          `json:"created-at"`
	Enabled        bool           `json:"enabled"`
}

type Storage struct {
	db *storage.DbHandle
	fs *storage.FsHandle

	stmtAppCreate         stmtAppCreate
	stmtAppList           stmtAppList
	stmtDeviceGet         stmtDeviceGet
	stmtDeviceList        map[OrderBy]stmtDeviceList
	stmtReleaseCreate     stmtReleaseCreate
	stmtReleaseList       stmtReleaseList
	stmtReleaseSetEnabled stmtReleaseSetEnabled
}

func NewStorage(db *storage.DbHandle, fs *storage.FsHandle) (*Storage, error) {
	handle := Storage{db: db, fs: fs}

	if err := db.InitStmt(
		&handle.stmtAppCreate,
		&handle.stmtAppList,
		&handle.stmtDeviceGet,
		&handle.stmtReleaseCreate,
		&handle.stmtReleaseList,
		&handle.stmtReleaseSetEnabled,
	); err != nil {
		return nil, err
	}

	handle.stmtDeviceList = make(map[OrderBy]stmtDeviceList, len(orderByDeviceMap))
	for orderBy, orderByStr := range orderByDeviceMap {
		stmt := stmtDeviceList{}
		if err := stmt.Init(*db, orderByStr); err != nil {
			return nil, err
		}
		handle.stmtDeviceList[orderBy] = stmt
	}

	return &handle, nil
}

// AppCreate registers a new app and mints its device bearer token. The
// token is only returned here; devices present it verbatim so there is
// no value in hashing it beyond the database's own protections.
func (s Storage) AppCreate(name, tier string) (*App, error) {
	a := App{
		Id:        uuid.New().String(),
		Name:      name,
		Tier:      tier,
		Token:     rand.Text() + rand.Text(),
		CreatedAt: time.Now().Unix(),
	}
	if err := s.stmtAppCreate.run(a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s Storage) AppsList() ([]App, error) {
	return s.stmtAppList.run()
}

func (s Storage) DevicesList(opts DeviceListOpts) ([]DeviceListItem, error) {
	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = OrderByDeviceLastSeenDsc
	}
	stmt, ok := s.stmtDeviceList[orderBy]
	if !ok {
		return nil, fmt.Errorf("invalid order by arg: %s", opts.OrderBy)
	}

	devices := make([]DeviceListItem, 0, opts.Limit)
	if err := stmt.run(opts.AppId, opts.Limit, opts.Offset, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (s Storage) DeviceGet(uuid string) (*Device, error) {
	d := Device{storage: s, DeviceListItem: DeviceListItem{Uuid: uuid}}
	if err := s.stmtDeviceGet.run(uuid, &d); err != nil {
		if err == sql.ErrNoRows {
			err = nil
		}
		return nil, err
	}
	return &d, nil
}

// Telemetry returns the device's stored telemetry, newest file first.
func (d Device) Telemetry() ([]DeviceTelemetryEvent, error) {
	names, err := d.storage.fs.Devices.ListFiles(d.Uuid, storage.EventsPrefix, true)
	if err != nil {
		return nil, err
	}

	var events []DeviceTelemetryEvent
	for i := len(names) - 1; i >= 0; i-- {
		for line, err := range d.storage.fs.Devices.ReadFileLines(d.Uuid, names[i]) {
			if err != nil {
				return nil, err
			}
			if len(line) == 0 {
				continue
			}
			var evt DeviceTelemetryEvent
			if err := json.Unmarshal([]byte(line), &evt); err != nil {
				return nil, fmt.Errorf("unexpected error unmarshalling telemetry json: %w", err)
			}
			events = append(events, evt)
		}
	}
	return events, nil
}

// ReleaseCreate stores the bundle content and records the release row.
// The bundle hash is computed server side so devices can trust it.
func (s Storage) ReleaseCreate(appId, channel, version string, bundle []byte, cfg CriticalConfig) (*Release, error) {
	cfgBytes, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal critical config: %w", err)
	}

	r := Release{
		AppId:          appId,
		Channel:        channel,
		Version:        version,
		BundleHash:     fmt.Sprintf("%x", sha256.Sum256(bundle)),
		BundleSize:     int64(len(bundle)),
		CriticalConfig: cfg,
		CreatedAt:      time.Now().Unix(),
		Enabled:        true,
	}
	if err := s.stmtReleaseCreate.run(&r, string(cfgBytes)); err != nil {
		return nil, err
	}
	if err := s.fs.Bundles.WriteBundle(appId, version, bundle); err != nil {
		return nil, fmt.Errorf("release %s recorded but bundle write failed: %w", version, err)
	}
	return &r, nil
}

func (s Storage) ReleasesList(appId, channel string) ([]Release, error) {
	return s.stmtReleaseList.run(appId, channel)
}

func (s Storage) ReleaseSetEnabled(appId, channel, version string, enabled bool) error {
	return s.stmtReleaseSetEnabled.run(appId, channel, version, enabled)
}

type stmtAppCreate storage.DbStmt

func (s *stmtAppCreate) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("apiAppCreate", `
		INSERT INTO apps (id, name, tier, token, created_at, deleted)
		VALUES (?, ?, ?, ?, ?, false)`,
	)
	return
}

func (s *stmtAppCreate) run(a App) error {
	_, err := s.Stmt.Exec(a.Id, a.Name, a.Tier, a.Token, a.CreatedAt)
	return err
}

type stmtAppList storage.DbStmt

func (s *stmtAppList) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("apiAppList", `
		SELECT id, name, tier, created_at
		FROM apps
		WHERE deleted = false
		ORDER BY created_at ASC`,
	)
	return
}

func (s *stmtAppList) run() ([]App, error) {
	var apps []App
	rows, err := s.Stmt.Query()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows in app list", "error", err)
		}
	}()
	for rows.Next() {
		var a App
		if err := rows.Scan(&a.Id, &a.Name, &a.Tier, &a.CreatedAt); err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

type stmtDeviceGet storage.DbStmt

func (s *stmtDeviceGet) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("apiDeviceGet", `
		SELECT
			app_id, created_at, last_seen, channel, current_version, previous_version, sdk_version
		FROM devices
		WHERE uuid = ? AND deleted=false`,
	)
	return
}

func (s *stmtDeviceGet) run(uuid string, d *Device) error {
	return s.Stmt.QueryRow(uuid).Scan(
		&d.AppId, &d.CreatedAt, &d.LastSeen,
		&d.Channel, &d.CurrentVersion, &d.PreviousVersion, &d.SdkVersion)
}

type stmtDeviceList storage.DbStmt

func (s *stmtDeviceList) Init(db storage.DbHandle, orderBy string) (err error) {
	s.Stmt, err = db.Prepare("apiDeviceList", fmt.Sprintf(`
		SELECT
			uuid, app_id, created_at, last_seen, channel, current_version, sdk_version
		FROM devices
		WHERE deleted=false AND (app_id = ? OR ? = '')
		ORDER BY %s LIMIT ? OFFSET ?`, orderBy),
	)
	return
}

func (s *stmtDeviceList) run(appId string, limit, offset int, dl *[]DeviceListItem) error {
	rows, err := s.Stmt.Query(appId, appId, limit, offset)
	if err != nil {
		return err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows in device list", "error", err)
		}
	}()
	for rows.Next() {
		var d DeviceListItem
		if err = rows.Scan(
			&d.Uuid, &d.AppId, &d.CreatedAt, &d.LastSeen, &d.Channel, &d.CurrentVersion, &d.SdkVersion,
		); err != nil {
			return err
		}
		*dl = append(*dl, d)
	}
	return rows.Err()
}

type stmtReleaseCreate storage.DbStmt

func (s *stmtReleaseCreate) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("apiReleaseCreate", `
		INSERT INTO releases (app_id, channel, version, bundle_hash, bundle_size, critical_config, created_at, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	return
}

func (s *stmtReleaseCreate) run(r *Release, cfg string) error {
	result, err := s.Stmt.Exec(
		r.AppId, r.Channel, r.Version, r.BundleHash, r.BundleSize, cfg, r.CreatedAt, r.Enabled)
	if err != nil {
		return err
	} else if id, err := result.LastInsertId(); err != nil {
		return err
	} else {
		r.Id = id
	}
	return nil
}

type stmtReleaseList storage.DbStmt

func (s *stmtReleaseList) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("apiReleaseList", `
		SELECT id, app_id, channel, version, bundle_hash, bundle_size, critical_config, created_at, enabled
		FROM releases
		WHERE app_id = ? AND (channel = ? OR ? = '')
		ORDER BY id DESC`,
	)
	return
}

func (s *stmtReleaseList) run(appId, channel string) ([]Release, error) {
	var releases []Release
	rows, err := s.Stmt.Query(appId, channel, channel)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows in release list", "error", err)
		}
	}()
	for rows.Next() {
		var (
			r   Release
			cfg string
		)
		if err := rows.Scan(
			&r.Id, &r.AppId, &r.Channel, &r.Version,
			&r.BundleHash, &r.BundleSize, &cfg, &r.CreatedAt, &r.Enabled,
		); err != nil {
			return nil, err
		}
		if cfg != "" {
			if err := json.Unmarshal([]byte(cfg), &r.CriticalConfig); err != nil {
				return nil, fmt.Errorf("unable to parse critical config for release %s: %w", r.Version, err)
			}
		}
		releases = append(releases, r)
	}
	return releases, rows.Err()
}

type stmtReleaseSetEnabled storage.DbStmt

func (s *stmtReleaseSetEnabled) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("apiReleaseSetEnabled", `
		UPDATE releases
		SET enabled = ?
		WHERE app_id = ? AND channel = ? AND version = ?`,
	)
	return
}

func (s *stmtReleaseSetEnabled) run(appId, channel, version string, enabled bool) error {
	_, err := s.Stmt.Exec(enabled, appId, channel, version)
	return err
}
