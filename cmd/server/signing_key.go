// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/bundlenudge/bundlenudge/storage"
)

type SigningKeyCmd struct {
	Force bool `help:"Replace an existing signing key"`
}

// Run creates the Ed25519 key pair the device gateway uses to sign update
// manifests. The private key never leaves the server; the public key is
// what gets embedded in the mobile app's SDK configuration.
func (c SigningKeyCmd) Run(args CommonArgs) error {
	fs, err := storage.NewFs(args.DataDir)
	if err != nil {
		return err
	}

	if !c.Force {
		if _, err := fs.Auth.ReadFile(storage.SigningKeyFile); err == nil {
			return fmt.Errorf("signing key already exists at %s, use --force to replace it", fs.Auth.FilePath(storage.SigningKeyFile))
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generating signing key: %w", err)
	}

	privDer, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("encoding private key: %w", err)
	}
	privPem := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDer})
	if err := fs.Auth.WriteFile(storage.SigningKeyFile, string(privPem)); err != nil {
		return fmt.Errorf("storing private key: %w", err)
	}

	pubDer, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("encoding public key: %w", err)
	}
	pubPem := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDer})
	if err := fs.Auth.WriteFile(storage.SigningPubFile, string(pubPem)); err != nil {
		return fmt.Errorf("storing public key: %w", err)
	}

	fmt.Printf("Created manifest signing key pair\n")
	fmt.Printf("Public key for SDK configuration:\n%s", pubPem)
	return nil
}
