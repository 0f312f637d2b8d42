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

// Package config defines the model catalog: which models can be queried,
// which backend serves them, and the per-model execution defaults.
package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/unstableneutron/oracle/pkg/errors"
)

// Pricing holds per-million-token rates in USD. Absent pricing means cost
// reporting is skipped for the model, never estimated.
type Pricing struct {
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
}

// ModelConfig describes one queryable model.
type ModelConfig struct {
	// ID is the model identifier sent to the backend.
	ID string `yaml:"id"`

	// Backend names the serving backend. Currently "openai".
	Backend string `yaml:"backend"`

	// Endpoint overrides the backend's default API base URL.
	Endpoint string `yaml:"endpoint,omitempty"`

	// CredentialEnv is the environment variable holding the API key.
	CredentialEnv string `yaml:"credential_env,omitempty"`

	// Background marks the model as eligible for background execution by
	// default. Deep-reasoning models run long enough that streaming a
	// single connection for the whole call is fragile.
	Background bool `yaml:"background,omitempty"`

	// MaxOutputTokens caps response length. Zero means backend default.
	MaxOutputTokens int `yaml:"max_output_tokens,omitempty"`

	// Timeout is the per-call deadline in seconds. Zero uses the
	// executor default.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`

	// Pricing enables cost reporting when set.
	Pricing *Pricing `yaml:"pricing,omitempty"`
}

// Catalog maps model identifiers to their configuration.
type Catalog struct {
	models map[string]ModelConfig
}

// DefaultCatalog returns the built-in model catalog.
func DefaultCatalog() *Catalog {
	return &Catalog{models: map[string]ModelConfig{
		"gpt-5.2": {
			ID:            "gpt-5.2",
			Backend:       "openai",
			CredentialEnv: "OPENAI_API_KEY",
			Pricing:       &Pricing{InputPerMTok: 1.25, OutputPerMTok: 10},
		},
		"gpt-5.2-pro": {
			ID:            "gpt-5.2-pro",
			Backend:       "openai",
			CredentialEnv: "OPENAI_API_KEY",
			Background:    true,
			Pricing:       &Pricing{InputPerMTok: 15, OutputPerMTok: 120},
		},
		"gpt-5.2-mini": {
			ID:            "gpt-5.2-mini",
			Backend:       "openai",
			CredentialEnv: "OPENAI_API_KEY",
			Pricing:       &Pricing{InputPerMTok: 0.25, OutputPerMTok: 2},
		},
	}}
}

// Lookup returns the configuration for an exact model identifier. There is
// no fuzzy matching; a typo should fail loudly, not silently query a
// different model.
func (c *Catalog) Lookup(id string) (ModelConfig, error) {
	mc, ok := c.models[id]
	if !ok {
		return ModelConfig{}, &errors.NotFoundError{Resource: "model", ID: id}
	}
	return mc, nil
}

// IDs returns all configured model identifiers, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.models))
	for id := range c.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// catalogFile is the YAML overlay schema.
type catalogFile struct {
	Models []ModelConfig `yaml:"models"`
}

// LoadCatalog returns the default catalog with the given YAML file overlaid
// on top. Entries with an ID matching a built-in replace it wholesale; new
// IDs are added. An empty path returns the defaults unchanged.
func LoadCatalog(path string) (*Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return catalog, nil
		}
		return nil, &errors.ConfigError{
			Key:    "models",
			Reason: fmt.Sprintf("failed to read %s", path),
			Cause:  err,
		}
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &errors.ConfigError{
			Key:    "models",
			Reason: fmt.Sprintf("failed to parse %s", path),
			Cause:  err,
		}
	}

	for _, mc := range file.Models {
		if mc.ID == "" {
			return nil, &errors.ConfigError{
				Key:    "models",
				Reason: "model entry missing id",
			}
		}
		if mc.Backend == "" {
			mc.Backend = "openai"
		}
		catalog.models[mc.ID] = mc
	}
	return catalog, nil
}
