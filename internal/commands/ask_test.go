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

package commands

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unstableneutron/oracle/internal/config"
	"github.com/unstableneutron/oracle/pkg/errors"
)

func TestResolvePromptFromArgument(t *testing.T) {
	prompt, err := resolvePrompt([]string{"why is the sky blue"}, strings.NewReader(""))

	require.NoError(t, err)
	assert.Equal(t, "why is the sky blue", prompt)
}

func TestResolvePromptFromStdin(t *testing.T) {
	prompt, err := resolvePrompt(nil, strings.NewReader("piped question\n"))

	require.NoError(t, err)
	assert.Equal(t, "piped question", prompt)
}

func TestResolvePromptCombinesArgumentAndStdin(t *testing.T) {
	prompt, err := resolvePrompt([]string{"review this change"}, strings.NewReader("diff --git a/x b/x\n"))

	require.NoError(t, err)
	assert.Equal(t, "review this change\n\ndiff --git a/x b/x", prompt)
}

func TestResolvePromptEmpty(t *testing.T) {
	_, err := resolvePrompt(nil, strings.NewReader(""))

	var ve *errors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "prompt", ve.Field)
}

func TestBuildRequestsUsesCatalogDefaults(t *testing.T) {
	catalog := config.DefaultCatalog()

	requests, err := buildRequests(catalog, []string{"gpt-5.2", "gpt-5.2-pro"}, "q", &askOptions{})

	require.NoError(t, err)
	require.Len(t, requests, 2)
	assert.False(t, requests[0].Background)
	assert.True(t, requests[1].Background, "pro model is background-eligible by default")
	require.NotNil(t, requests[0].Pricing)
}

func TestBuildRequestsFlagOverrides(t *testing.T) {
	catalog := config.DefaultCatalog()

	requests, err := buildRequests(catalog, []string{"gpt-5.2-pro"}, "q", &askOptions{
		background:      "false",
		timeout:         5 * time.Minute,
		maxOutputTokens: 1024,
		search:          true,
	})

	require.NoError(t, err)
	req := requests[0]
	assert.False(t, req.Background, "--background=false overrides the catalog")
	assert.Equal(t, 5*time.Minute, req.Timeout)
	assert.Equal(t, 1024, req.MaxOutputTokens)
	assert.True(t, req.WebSearch)
}

func TestBuildRequestsRejectsBadBackgroundValue(t *testing.T) {
	_, err := buildRequests(config.DefaultCatalog(), []string{"gpt-5.2"}, "q", &askOptions{background: "maybe"})

	var ve *errors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "background", ve.Field)
}

func TestBuildRequestsUnknownModel(t *testing.T) {
	_, err := buildRequests(config.DefaultCatalog(), []string{"gpt-9"}, "q", &askOptions{})

	var nfe *errors.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "gpt-9", nfe.ID)
}

func TestRenderErrorIncludesSuggestion(t *testing.T) {
	msg := renderError(&errors.ValidationError{
		Field:      "credentials",
		Message:    "no API key found",
		Suggestion: "Set OPENAI_API_KEY",
	})

	assert.Contains(t, msg, "no API key found")
	assert.Contains(t, msg, "Set OPENAI_API_KEY")
}

func TestRootCommandFlagsParse(t *testing.T) {
	var buf strings.Builder
	cmd := NewRootCommand()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "--model")
}
