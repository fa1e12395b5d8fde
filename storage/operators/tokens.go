// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package operators

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bundlenudge/bundlenudge/auth"
	"github.com/bundlenudge/bundlenudge/storage"
	"golang.org/x/crypto/hkdf"
)

type Token struct {
	PublicID    int64
	CreatedAt   int64
	ExpiresAt   int64
	Description string
	Scopes      auth.Scopes
	Value       string
}

func (s Storage) genTokenKey(token string) ([]byte, error) {
	if len(token) < 17 {
		return nil, fmt.Errorf("token too short to derive key")
	}
	salt := []byte(token[3:17])
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.hmacSecret, salt, nil), key); err != nil {
		return nil, fmt.Errorf("unable to derive encryption key for token: %w", err)
	}
	return key, nil
}

func (s Storage) GetByToken(token string) (*Operator, error) {
	key, err := s.genTokenKey(token)
	if err != nil {
		return nil, err
	}

	hasher := hmac.New(sha256.New, key)
	if _, err := hasher.Write([]byte(token)); err != nil {
		return nil, fmt.Errorf("unable to hash token value: %w", err)
	}
	hashed := fmt.Sprintf("%x", hasher.Sum(nil))
	t, operatorID, err := s.stmtTokenLookup.run(hashed)
	if err != nil {
		return nil, err
	} else if t == nil {
		return nil, nil
	}

	if t.ExpiresAt < time.Now().Unix() {
		return nil, nil
	}
	o, err := s.stmtOperatorGetById.run(operatorID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if o != nil {
		o.h = s
		o.AllowedScopes = t.Scopes & o.AllowedScopes
	}
	return o, err
}

func (o Operator) GenerateToken(description string, expires int64, scopes auth.Scopes) (*Token, error) {
	if scopes&o.AllowedScopes != scopes {
		return nil, fmt.Errorf("requested scopes %s exceed allowed scopes %s", scopes.String(), o.AllowedScopes.String())
	}

	value := rand.Text()
	key, err := o.h.genTokenKey(value)
	if err != nil {
		return nil, err
	}

	hasher := hmac.New(sha256.New, key)
	if _, err := hasher.Write([]byte(value)); err != nil {
		return nil, fmt.Errorf("unable to hash token value: %w", err)
	}
	hashed := fmt.Sprintf("%x", hasher.Sum(nil))

	t := Token{
		CreatedAt:   time.Now().Unix(),
		ExpiresAt:   expires,
		Description: description,
		Scopes:      scopes,
		Value:       hashed,
	}

	if err := o.h.stmtTokenCreate.run(o, &t); err != nil {
		return nil, err
	}
	slog.Info("Operator token created",
		"operator", o.Name, "id", t.PublicID, "expires", expires, "scopes", scopes.String())
	t.Value = value
	return &t, nil
}

func (o Operator) DeleteToken(id int64) error {
	if err := o.h.stmtTokenDelete.run(o, id); err != nil {
		return err
	}
	slog.Info("Operator token deleted", "operator", o.Name, "id", id)
	return nil
}

func (o Operator) ListTokens() ([]Token, error) {
	return o.h.stmtTokenList.run(o)
}

type stmtTokenCreate storage.DbStmt

func (s *stmtTokenCreate) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("tokenCreate", `
		INSERT INTO tokens (operator_id, created_at, expires_at, description, scopes, value)
		VALUES (?, ?, ?, ?, ?, ?)`,
	)
	return
}

func (s *stmtTokenCreate) run(o Operator, t *Token) error {
	result, err := s.Stmt.Exec(
		o.id,
		t.CreatedAt,
		t.ExpiresAt,
		t.Description,
		t.Scopes,
		t.Value,
	)
	if err != nil {
		return err
	} else if id, err := result.LastInsertId(); err != nil {
		return err
	} else {
		t.PublicID = id
	}
	return err
}

type stmtTokenDelete storage.DbStmt

func (s *stmtTokenDelete) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("tokenDelete", `
		DELETE FROM tokens
		WHERE operator_id = ? and public_id = ?`,
	)
	return
}

func (s *stmtTokenDelete) run(o Operator, id int64) error {
	_, err := s.Stmt.Exec(o.id, id)
	return err
}

type stmtTokenDeleteAll storage.DbStmt

func (s *stmtTokenDeleteAll) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("tokenDeleteAll", `
		DELETE FROM tokens
		WHERE operator_id = ?`,
	)
	return
}

func (s *stmtTokenDeleteAll) run(o Operator) error {
	_, err := s.Stmt.Exec(o.id)
	return err
}

type stmtTokenDeleteExpired storage.DbStmt

func (s *stmtTokenDeleteExpired) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("tokenDeleteExpired", `
		DELETE FROM tokens
		WHERE expires_at < ?`,
	)
	return
}

func (s *stmtTokenDeleteExpired) run(before int64) error {
	_, err := s.Stmt.Exec(before)
	return err
}

type stmtTokenList storage.DbStmt

func (s *stmtTokenList) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("tokenList", `
		SELECT public_id, created_at, expires_at, description, scopes
		FROM tokens
		WHERE operator_id = ?
		ORDER BY created_at ASC`,
	)
	return
}

func (s *stmtTokenList) run(o Operator) ([]Token, error) {
	var tokens []Token
	rows, err := s.Stmt.Query(o.id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("stmtTokenList: failed to close rows", "error", err)
		}
	}()

	for rows.Next() {
		var t Token
		err := rows.Scan(
			&t.PublicID,
			&t.CreatedAt,
			&t.ExpiresAt,
			&t.Description,
			&t.Scopes,
		)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

type stmtTokenLookup storage.DbStmt

func (s *stmtTokenLookup) Init(db storage.DbHandle) (err error) {
	s.Stmt, err = db.Prepare("tokenLookup", `
		SELECT operator_id, public_id, created_at, expires_at, scopes
		FROM tokens
		WHERE value = ?`,
	)
	return
}

func (s *stmtTokenLookup) run(value string) (*Token, int64, error) {
	var t Token
	var operatorID int64
	err := s.Stmt.QueryRow(value).Scan(
		&operatorID,
		&t.PublicID,
		&t.CreatedAt,
		&t.ExpiresAt,
		&t.Scopes,
	)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	} else if err != nil {
		return nil, 0, err
	}
	return &t, operatorID, nil
}
