// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	sqlite3 "github.com/mattn/go-sqlite3"
)

type DbHandle struct {
	db *sql.DB
}

func NewDb(dbfile string) (*DbHandle, error) {
	var newDb bool
	if _, err := os.Stat(dbfile); err != nil {
		newDb = errors.Is(err, os.ErrNotExist)
	}
	db, err := sql.Open("sqlite3", dbfile)
	if err != nil {
		return nil, err
	}
	if newDb {
		if err := createTables(db); err != nil {
			return nil, err
		}
	}
	return &DbHandle{db: db}, nil
}

func (d DbHandle) Close() error {
	return d.db.Close()
}

func (d DbHandle) Prepare(name, query string) (stmt *sql.Stmt, err error) {
	if stmt, err = d.db.Prepare(query); err != nil {
		err = fmt.Errorf("unable to prepare '%s' statement: %w", name, err)
	}
	return
}

func (d DbHandle) InitStmt(stmt ...DbStmtInit) (err error) {
	for _, s := range stmt {
		if err = s.Init(d); err != nil {
			break
		}
	}
	return
}

var ErrDbConstraintUnique = errors.New("unique constraint violated")

func IsDbError(err, dbErr error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	if dbErr == ErrDbConstraintUnique {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func createTables(db *sql.DB) error {
	sqlStmt := `
		CREATE TABLE apps (
			id         VARCHAR(48) NOT NULL PRIMARY KEY,
			name       TEXT NOT NULL,
			tier       VARCHAR(16) DEFAULT "free",
			token      VARCHAR(64) NOT NULL UNIQUE,
			created_at INT DEFAULT 0,
			deleted    BOOL DEFAULT 0
		) WITHOUT ROWID;

		CREATE TABLE devices (
			uuid             VARCHAR(48) NOT NULL PRIMARY KEY,
			app_id           VARCHAR(48) NOT NULL,
			deleted          BOOL DEFAULT 0,
			created_at       INT DEFAULT 0,
			last_seen        INT DEFAULT 0,
			channel          VARCHAR(80) DEFAULT "",
			current_version  VARCHAR(80) DEFAULT "",
			previous_version VARCHAR(80) DEFAULT "",
			sdk_version      VARCHAR(40) DEFAULT "",

			FOREIGN KEY(app_id) REFERENCES apps(id)
		) WITHOUT ROWID;

		CREATE TABLE releases (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			app_id          VARCHAR(48) NOT NULL,
			channel         VARCHAR(80) NOT NULL,
			version         VARCHAR(80) NOT NULL,
			bundle_hash     VARCHAR(64) NOT NULL,
			bundle_size     INT DEFAULT 0,
			critical_config TEXT DEFAULT "",
			created_at      INT DEFAULT 0,
			enabled         BOOL DEFAULT 1,

			FOREIGN KEY(app_id) REFERENCES apps(id),
			UNIQUE(app_id, channel, version)
		);

		CREATE TABLE operators (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			name           TEXT NOT NULL UNIQUE,
			created_at     INT DEFAULT 0,
			deleted        BOOL DEFAULT 0,
			allowed_scopes INT DEFAULT 0
		);

		CREATE TABLE tokens (
			public_id   INTEGER PRIMARY KEY AUTOINCREMENT,
			operator_id INT,
			created_at  INT,
			expires_at  INT,
			description VARCHAR(80),
			scopes      INT,
			value       VARCHAR(64) NOT NULL UNIQUE,

			FOREIGN KEY(operator_id) REFERENCES operators(id)
		);
	`
	if _, err := db.Exec(sqlStmt); err != nil {
		return fmt.Errorf("unable to create database tables: %w", err)
	}
	return nil
}

type DbStmt struct {
	Stmt *sql.Stmt
}

type DbStmtInit interface {
	Init(db DbHandle) error
}
