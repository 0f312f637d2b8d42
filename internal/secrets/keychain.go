// Copyright 2026 The Oracle Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package secrets resolves backend credentials from the environment and the
// system keychain. Environment variables win; the keychain is the fallback so
// API keys never need to live in config files.
//
// Supported keychain platforms:
//   - macOS: Keychain Access
//   - Linux: Secret Service API (GNOME Keyring, KWallet)
//   - Windows: Credential Manager
package secrets

import (
	stderrors "errors"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/unstableneutron/oracle/pkg/errors"
)

// service is the keychain service name used for all oracle entries.
const service = "oracle"

// Keychain reads and writes credentials in the system keychain.
type Keychain struct {
	available bool
}

// NewKeychain probes keychain availability once and returns the accessor.
// An unavailable keychain (headless Linux without a Secret Service daemon)
// is not an error; lookups report not-found-style failures instead.
func NewKeychain() *Keychain {
	k := &Keychain{available: true}

	_, err := keyring.Get(service, "__oracle_availability_test__")
	if err != nil && !stderrors.Is(err, keyring.ErrNotFound) {
		k.available = false
	}
	return k
}

// Available reports whether the system keychain can be reached.
func (k *Keychain) Available() bool {
	return k.available
}

// Get retrieves a credential by key.
func (k *Keychain) Get(key string) (string, error) {
	if !k.available {
		return "", &errors.ConfigError{
			Key:    "keychain." + key,
			Reason: "system keychain unavailable or locked",
		}
	}

	value, err := keyring.Get(service, key)
	if err != nil {
		if stderrors.Is(err, keyring.ErrNotFound) {
			return "", &errors.NotFoundError{Resource: "keychain entry", ID: key}
		}
		if isUnavailableError(err) {
			return "", &errors.ConfigError{
				Key:    "keychain." + key,
				Reason: "keychain is locked or inaccessible",
				Cause:  err,
			}
		}
		return "", &errors.ConfigError{
			Key:    "keychain." + key,
			Reason: "keychain read failed",
			Cause:  err,
		}
	}
	return value, nil
}

// Set stores a credential under the given key.
func (k *Keychain) Set(key, value string) error {
	if !k.available {
		return &errors.ConfigError{
			Key:    "keychain." + key,
			Reason: "system keychain unavailable or locked",
		}
	}
	if err := keyring.Set(service, key, value); err != nil {
		return &errors.ConfigError{
			Key:    "keychain." + key,
			Reason: "keychain write failed",
			Cause:  err,
		}
	}
	return nil
}

// Delete removes a credential. Deleting a missing entry is not an error.
func (k *Keychain) Delete(key string) error {
	if !k.available {
		return &errors.ConfigError{
			Key:    "keychain." + key,
			Reason: "system keychain unavailable or locked",
		}
	}
	err := keyring.Delete(service, key)
	if err != nil && !stderrors.Is(err, keyring.ErrNotFound) {
		return &errors.ConfigError{
			Key:    "keychain." + key,
			Reason: "keychain delete failed",
			Cause:  err,
		}
	}
	return nil
}

// isUnavailableError recognizes locked or missing keychain daemons from the
// message shapes go-keyring surfaces per platform.
func isUnavailableError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"locked",
		"access denied",
		"permission denied",
		"no such interface",
		"cannot autolaunch",
		"connection refused",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
