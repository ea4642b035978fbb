// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets loads API credentials into guarded memory.
//
// Keys are resolved from an environment variable first, then from a
// container secret file (the /run/secrets convention). The plaintext is
// sealed into a memguard Enclave immediately so it never sits in an
// ordinary Go string longer than necessary.
//
// # Usage
//
//	enclave, err := secrets.Load("OPENAI_API_KEY", "/run/secrets/openai_api_key")
//	if err != nil { ... }
//
//	key, release, err := secrets.Open(enclave)
//	if err != nil { ... }
//	defer release()
//	client := openai.NewClient(key)
package secrets

import (
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"
)

// Load resolves a credential from envVar, falling back to secretPath.
// The returned Enclave holds the sealed key. Returns an error when
// neither source yields a non-empty value.
func Load(envVar, secretPath string) (*memguard.Enclave, error) {
	value := strings.TrimSpace(os.Getenv(envVar))
	if value == "" && secretPath != "" {
		raw, err := os.ReadFile(secretPath)
		if err == nil {
			value = strings.TrimSpace(string(raw))
		}
	}
	if value == "" {
		return nil, fmt.Errorf("credential not found: %s unset and no secret at %s", envVar, secretPath)
	}
	return memguard.NewEnclave([]byte(value)), nil
}

// Open decrypts the enclave for use. The release func destroys the
// plaintext buffer; call it as soon as the key has been handed off.
func Open(enclave *memguard.Enclave) (string, func(), error) {
	if enclave == nil {
		return "", nil, fmt.Errorf("nil enclave")
	}
	buf, err := enclave.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open credential enclave: %w", err)
	}
	return buf.String(), buf.Destroy, nil
}
