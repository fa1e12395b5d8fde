// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package gateway

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	jose "gopkg.in/go-jose/go-jose.v2"

	storage "github.com/bundlenudge/bundlenudge/storage/gateway"
)

// ManifestSigner signs update-check manifests so devices on hostile
// networks can verify them end to end.
type ManifestSigner struct {
	signer jose.Signer
}

// NewManifestSigner loads the server's manifest signing key. A missing key
// is not an error: the deployment serves plain manifests.
func NewManifestSigner(fs *storage.FsHandle) (*ManifestSigner, error) {
	pemStr, err := fs.Auth.ReadFile(storage.SigningKeyFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to read manifest signing key: %w", err)
	}

	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("manifest signing key is not PEM encoded")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unable to parse manifest signing key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("manifest signing key must be Ed25519, got %T", parsed)
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: key}, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create manifest signer: %w", err)
	}
	return &ManifestSigner{signer: signer}, nil
}

func (s *ManifestSigner) Sign(payload []byte) (string, error) {
	obj, err := s.signer.Sign(payload)
	if err != nil {
		return "", err
	}
	return obj.CompactSerialize()
}
