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

package config

import (
	"os"

	"github.com/unstableneutron/oracle/internal/secrets"
	"github.com/unstableneutron/oracle/pkg/errors"
)

// defaultCredentialEnv is consulted when a model entry names no variable.
const defaultCredentialEnv = "OPENAI_API_KEY"

// CredentialStore is the keychain surface credential resolution needs.
type CredentialStore interface {
	Get(key string) (string, error)
}

// ResolveCredential finds the API key for a model: the configured
// environment variable first, then the system keychain under the backend
// name. A missing credential is a validation failure with guidance, not a
// backend error.
func ResolveCredential(mc ModelConfig, store CredentialStore) (string, error) {
	envVar := mc.CredentialEnv
	if envVar == "" {
		envVar = defaultCredentialEnv
	}

	if value := os.Getenv(envVar); value != "" {
		return value, nil
	}

	if store != nil {
		if value, err := store.Get(mc.Backend + "-api-key"); err == nil && value != "" {
			return value, nil
		}
	}

	return "", &errors.ValidationError{
		Field:      "credentials",
		Message:    "no API key found for backend " + mc.Backend,
		Suggestion: "Set " + envVar + " or store the key with `oracle auth set " + mc.Backend + "`",
	}
}

// NewKeychainStore returns the system keychain as a CredentialStore.
func NewKeychainStore() CredentialStore {
	return secrets.NewKeychain()
}
