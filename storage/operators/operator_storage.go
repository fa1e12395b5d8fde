// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package operators

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/bundlenudge/bundlenudge/auth"
	"github.com/bundlenudge/bundlenudge/storage"
)

// Operator is a human (or automation account) allowed to drive the
// operator API. Operators never log in directly; they authenticate
// with API tokens generated via GenerateToken.
type Operator struct {
	h  Storage
	id int64

	Name string

	CreatedAt int64
	Deleted   bool

	AllowedScopes auth.Scopes
}

func (o Operator) Id() string {
	return o.Name
}

func (o Operator) HasScope(scope auth.Scopes) error {
	if !o.AllowedScopes.Has(scope) {
		return fmt.Errorf("operator %s missing required scope: %s", o.Name, scope.String())
	}
	return nil
}

func (o Operator) Delete() error {
	o.Deleted = true
	if err := o.h.stmtTokenDeleteAll.run(o); err != nil {
		return fmt.Errorf("unable to delete operator while deleting tokens: %w", err)
	}
	return o.h.stmtOperatorUpdate.run(o)
}

type Storage struct {
	db *storage.DbHandle

	hmacSecret []byte

	stmtOperatorCreate    stmtOperatorCreate
	stmtOperatorGetById   stmtOperatorGetById
	stmtOperatorGetByName stmtOperatorGetByName
	stmtOperatorList      stmtOperatorList
	stmtOperatorUpdate    stmtOperatorUpdate

	stmtTokenCreate        stmtTokenCreate
	stmtTokenDelete        stmtTokenDelete
	stmtTokenDeleteAll     stmtTokenDeleteAll
	stmtTokenDeleteExpired stmtTokenDeleteExpired
	stmtTokenList          stmtTokenList
	stmtTokenLookup        stmtTokenLookup
}

func NewStorage(db *storage.DbHandle, fs *storage.FsHandle) (*Storage, error) {
	hmacSecret, err := fs.Auth.GetHmacSecret()
	if err != nil {
		return nil, fmt.Errorf("unable to read HMAC secret for API tokens: %w", err)
	}
	handle := Storage{
		db:         db,
		hmacSecret: hmacSecret,
	}

	if err := db.InitStmt(
		&handle.stmtOperatorCreate,
		&handle.stmtOperatorGetById,
		&handle.stmtOperatorGetByName,
		&handle.stmtOperatorList,
		&handle.stmtOperatorUpdate,
		&handle.stmtTokenCreate,
		&handle.stmtTokenDelete,
		&handle.stmtTokenDeleteAll,
		&handle.stmtTokenDeleteExpired,
		&handle.stmtTokenList,
		&handle.stmtTokenLookup,
	); err != nil {
		return nil, err
	}

	return &handle, nil
}

func (s Storage) RunGc() {
	slog.Info("Running operator token GC")
	if err := s.stmtTokenDeleteExpired.run(time.Now().Unix()); err != nil {
		slog.Error("Unable to run operator token GC", "error", err)
	}
}

func (s Storage) Create(o *Operator) error {
	err := s.stmtOperatorCreate.run(o)
	if err == nil {
		o.h = s
	}
	return err
}

func (s Storage) Get(name string) (*Operator, error) {
	o, err := s.stmtOperatorGetByName.run(name)
	switch err {
	case sql.ErrNoRows:
		return nil, nil
	case nil:
		o.h = s
	}
	return o, err
}

func (s Storage) List() ([]Operator, error) {
	ops, err := s.stmtOperatorList.run()
	if err == nil {
		for i := range ops {
			ops[i].h = s
		}
	}
	return ops, err
}

type stmtOperatorCreate storage.DbStmt

func (s *stmtOperatorCreate) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("operatorCreate", `
		INSERT INTO operators (name, created_at, deleted, allowed_scopes)
		VALUES (?, ?, ?, ?)`,
	)
	return
}

func (s *stmtOperatorCreate) run(o *Operator) error {
	if o.CreatedAt == 0 {
		o.CreatedAt = time.Now().Unix()
	}
	result, err := s.Stmt.Exec(
		o.Name,
		o.CreatedAt,
		o.Deleted,
		o.AllowedScopes,
	)
	if err != nil {
		return err
	} else if id, err := result.LastInsertId(); err != nil {
		return err
	} else {
		o.id = id
	}
	return nil
}

type stmtOperatorGetById storage.DbStmt

func (s *stmtOperatorGetById) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("operatorGetId", `
		SELECT id, name, created_at, allowed_scopes
		FROM operators
		WHERE id = ? AND deleted = false`,
	)
	return
}

func (s *stmtOperatorGetById) run(id int64) (*Operator, error) {
	o := Operator{}
	err := s.Stmt.QueryRow(id).Scan(
		&o.id,
		&o.Name,
		&o.CreatedAt,
		&o.AllowedScopes,
	)
	return &o, err
}

type stmtOperatorGetByName storage.DbStmt

func (s *stmtOperatorGetByName) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("operatorGet", `
		SELECT id, name, created_at, allowed_scopes
		FROM operators
		WHERE name = ? AND deleted = false`,
	)
	return
}

func (s *stmtOperatorGetByName) run(name string) (*Operator, error) {
	o := Operator{}
	err := s.Stmt.QueryRow(name).Scan(
		&o.id,
		&o.Name,
		&o.CreatedAt,
		&o.AllowedScopes,
	)
	return &o, err
}

type stmtOperatorList storage.DbStmt

func (s *stmtOperatorList) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("operatorList", `
		SELECT id, name, created_at, deleted, allowed_scopes
		FROM operators
		WHERE deleted = false`,
	)
	return
}

func (s *stmtOperatorList) run() ([]Operator, error) {
	var ops []Operator
	rows, err := s.Stmt.Query()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("stmtOperatorList: failed to close rows", "error", err)
		}
	}()

	for rows.Next() {
		var o Operator
		err := rows.Scan(
			&o.id,
			&o.Name,
			&o.CreatedAt,
			&o.Deleted,
			&o.AllowedScopes,
		)
		if err != nil {
			return nil, err
		}
		ops = append(ops, o)
	}
	return ops, rows.Err()
}

type stmtOperatorUpdate storage.DbStmt

func (s *stmtOperatorUpdate) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("operatorUpdate", `
		UPDATE operators
		SET name = ?, allowed_scopes = ?, deleted = ?
		WHERE id = ?`,
	)
	return
}

func (s *stmtOperatorUpdate) run(o Operator) error {
	_, err := s.Stmt.Exec(o.Name, o.AllowedScopes, o.Deleted, o.id)
	return err
}
