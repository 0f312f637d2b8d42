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
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/unstableneutron/oracle/internal/config"
	"github.com/unstableneutron/oracle/internal/format"
	"github.com/unstableneutron/oracle/internal/metrics"
	"github.com/unstableneutron/oracle/internal/session"
	"github.com/unstableneutron/oracle/internal/tracing"
	"github.com/unstableneutron/oracle/pkg/backend"
	"github.com/unstableneutron/oracle/pkg/errors"
	"github.com/unstableneutron/oracle/pkg/oracle"
)

// defaultModel is queried when no -m flag is given.
const defaultModel = "gpt-5.2"

type askOptions struct {
	models          []string
	timeout         time.Duration
	background      string
	maxOutputTokens int
	search          bool
	output          string
	configPath      string
	dataDir         string
	quiet           bool
}

func runAsk(cmd *cobra.Command, args []string, opts *askOptions) error {
	ctx := cmd.Context()
	logger := loggerFrom(ctx)

	outFormat, err := format.ParseOutput(opts.output)
	if err != nil {
		return err
	}

	prompt, err := resolvePrompt(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	catalog, err := config.LoadCatalog(defaultConfigPath(opts.configPath))
	if err != nil {
		return err
	}

	models := opts.models
	if len(models) == 0 {
		if envModel := os.Getenv("ORACLE_MODEL"); envModel != "" {
			models = []string{envModel}
		} else {
			models = []string{defaultModel}
		}
	}

	requests, err := buildRequests(catalog, models, prompt, opts)
	if err != nil {
		return err
	}

	resolver, err := buildResolver(catalog, models)
	if err != nil {
		return err
	}

	store, err := session.New(session.Config{
		Path: filepath.Join(defaultDataDir(opts.dataDir), "oracle.db"),
		WAL:  true,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	exec := oracle.NewExecutor(resolver, oracle.ExecutorConfig{},
		oracle.WithLogger(logger),
		oracle.WithStore(store),
	)

	if len(requests) == 1 && outFormat == format.OutputText {
		return askSingle(cmd, exec, store, requests[0], opts)
	}
	return askMulti(cmd, exec, store, requests, opts, outFormat)
}

// resolvePrompt takes the prompt from the argument, falling back to stdin
// when input is piped. An argument and piped input combine with the piped
// content appended, so `git diff | oracle "review this"` works.
func resolvePrompt(args []string, stdin io.Reader) (string, error) {
	var parts []string
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		parts = append(parts, args[0])
	}

	if f, ok := stdin.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		piped, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		if text := strings.TrimSpace(string(piped)); text != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		return "", &errors.ValidationError{
			Field:      "prompt",
			Message:    "no prompt given",
			Suggestion: "Pass the prompt as an argument or pipe it on stdin",
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// buildRequests turns catalog entries plus flags into one request per model.
func buildRequests(catalog *config.Catalog, models []string, prompt string, opts *askOptions) ([]oracle.ModelRequest, error) {
	requests := make([]oracle.ModelRequest, 0, len(models))
	for _, model := range models {
		mc, err := catalog.Lookup(model)
		if err != nil {
			return nil, err
		}

		req := oracle.ModelRequest{
			Model:           mc.ID,
			Prompt:          prompt,
			MaxOutputTokens: mc.MaxOutputTokens,
			WebSearch:       opts.search,
			Background:      mc.Background,
		}
		if opts.maxOutputTokens > 0 {
			req.MaxOutputTokens = opts.maxOutputTokens
		}
		if mc.TimeoutSeconds > 0 {
			req.Timeout = time.Duration(mc.TimeoutSeconds) * time.Second
		}
		if opts.timeout > 0 {
			req.Timeout = opts.timeout
		}
		switch opts.background {
		case "":
		case "true", "1", "yes":
			req.Background = true
		case "false", "0", "no":
			req.Background = false
		default:
			return nil, &errors.ValidationError{
				Field:      "background",
				Message:    fmt.Sprintf("invalid value %q", opts.background),
				Suggestion: "Use --background=true or --background=false",
			}
		}
		if mc.Pricing != nil {
			req.Pricing = &oracle.Pricing{
				InputPerMTok:  mc.Pricing.InputPerMTok,
				OutputPerMTok: mc.Pricing.OutputPerMTok,
			}
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// buildResolver constructs one instrumented client per distinct
// backend/endpoint and maps each model onto its client.
func buildResolver(catalog *config.Catalog, models []string) (oracle.ClientResolver, error) {
	m := metrics.New()
	keychain := config.NewKeychainStore()

	clients := make(map[string]backend.Client, len(models))
	shared := make(map[string]backend.Client)
	for _, model := range models {
		mc, err := catalog.Lookup(model)
		if err != nil {
			return nil, err
		}
		if mc.Backend != "openai" {
			return nil, &errors.ConfigError{
				Key:    "models." + model + ".backend",
				Reason: fmt.Sprintf("unsupported backend %q", mc.Backend),
			}
		}

		key := mc.Backend + "|" + mc.Endpoint
		client, ok := shared[key]
		if !ok {
			apiKey, err := config.ResolveCredential(mc, keychain)
			if err != nil {
				return nil, err
			}
			var clientOpts []backend.OpenAIOption
			if mc.Endpoint != "" {
				clientOpts = append(clientOpts, backend.WithBaseURL(mc.Endpoint))
			}
			raw, err := backend.NewOpenAIClient(apiKey, clientOpts...)
			if err != nil {
				return nil, err
			}
			client = tracing.WrapClient(m.InstrumentClient(raw))
			shared[key] = client
		}
		clients[mc.ID] = client
	}

	return func(model string) (backend.Client, error) {
		client, ok := clients[model]
		if !ok {
			return nil, &errors.NotFoundError{Resource: "model", ID: model}
		}
		return client, nil
	}, nil
}

// askSingle streams one model's answer straight to stdout.
func askSingle(cmd *cobra.Command, exec *oracle.Executor, store *session.Store, req oracle.ModelRequest, opts *askOptions) error {
	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()

	runID := newRunID()
	logWriter, err := store.CreateLogWriter(runID, req.Model)
	if err != nil {
		return err
	}
	defer logWriter.Close()

	req.SuppressBanner = opts.quiet

	result, err := exec.Run(cmd.Context(), req, oracle.RunOptions{
		RunID:        runID,
		RecordStatus: true,
		Log:          logWriter,
		Sink: func(chunk string) bool {
			if _, werr := out.WriteString(chunk); werr != nil {
				return false
			}
			return out.Flush() == nil
		},
	})
	if err != nil {
		return err
	}

	// Backgrounded answers arrive whole through the sink, streamed ones
	// incrementally; either way the output already ended on a newline.
	if !opts.quiet && isTerminal(cmd.OutOrStdout()) {
		fmt.Fprint(cmd.ErrOrStderr(), format.Muted.Render(fmt.Sprintf(
			"%s tokens in %s  run %s\n",
			format.Tokens(result.Usage.TotalTokens),
			result.Elapsed.Round(100*time.Millisecond),
			runID,
		)))
	}
	return nil
}

// askMulti fans the prompt out and prints each answer as it settles.
func askMulti(cmd *cobra.Command, exec *oracle.Executor, store *session.Store, requests []oracle.ModelRequest, opts *askOptions, outFormat format.Output) error {
	orch := oracle.NewOrchestrator(exec, store, loggerFrom(cmd.Context()))
	out := cmd.OutOrStdout()
	runID := newRunID()

	var jsonOutcomes []jsonOutcome

	summary, err := orch.Run(cmd.Context(), oracle.MultiRunInput{
		RunID:    runID,
		Requests: requests,
		OnModelDone: func(outcome oracle.ModelExecutionOutcome) {
			if outFormat == format.OutputJSON {
				jsonOutcomes = append(jsonOutcomes, toJSONOutcome(outcome))
				return
			}
			if !opts.quiet {
				fmt.Fprintln(out, format.ModelBanner(outcome.Model))
			}
			if outcome.Fulfilled() {
				fmt.Fprintln(out, strings.TrimRight(outcome.AnswerText, "\n"))
			} else {
				fmt.Fprintln(out, renderError(outcome.Err))
			}
			if !opts.quiet {
				fmt.Fprintln(out)
			}
		},
	})
	if err != nil {
		return err
	}

	if outFormat == format.OutputJSON {
		return json.NewEncoder(out).Encode(jsonResult{
			RunID:     runID,
			ElapsedMS: summary.Elapsed.Milliseconds(),
			Fulfilled: len(summary.Fulfilled),
			Rejected:  len(summary.Rejected),
			Outcomes:  jsonOutcomes,
		})
	}

	if !opts.quiet {
		fmt.Fprint(cmd.ErrOrStderr(), format.Summary(summary))
	}
	return nil
}

type jsonOutcome struct {
	Model           string   `json:"model"`
	Answer          string   `json:"answer,omitempty"`
	Error           string   `json:"error,omitempty"`
	InputTokens     int      `json:"input_tokens"`
	OutputTokens    int      `json:"output_tokens"`
	ReasoningTokens int      `json:"reasoning_tokens"`
	TotalTokens     int      `json:"total_tokens"`
	Cost            *float64 `json:"cost,omitempty"`
	Log             string   `json:"log,omitempty"`
}

type jsonResult struct {
	RunID     string        `json:"run_id"`
	ElapsedMS int64         `json:"elapsed_ms"`
	Fulfilled int           `json:"fulfilled"`
	Rejected  int           `json:"rejected"`
	Outcomes  []jsonOutcome `json:"outcomes"`
}

func toJSONOutcome(outcome oracle.ModelExecutionOutcome) jsonOutcome {
	jo := jsonOutcome{
		Model:           outcome.Model,
		InputTokens:     outcome.Usage.InputTokens,
		OutputTokens:    outcome.Usage.OutputTokens,
		ReasoningTokens: outcome.Usage.ReasoningTokens,
		TotalTokens:     outcome.Usage.TotalTokens,
		Cost:            outcome.Usage.Cost,
		Log:             outcome.LogLocator,
	}
	if outcome.Fulfilled() {
		jo.Answer = outcome.AnswerText
	} else {
		jo.Error = outcome.Err.Error()
	}
	return jo
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
