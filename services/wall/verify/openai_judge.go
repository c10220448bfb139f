// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/singleflight"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/rampart/services/wall/config"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNoAPIKey is returned when the openai provider is selected but
	// its key environment variable is empty.
	ErrNoAPIKey = errors.New("verify: judge api key not set")

	// ErrUnknownProvider is returned for provider names the factory
	// does not recognize.
	ErrUnknownProvider = errors.New("verify: unknown judge provider")
)

// =============================================================================
// Judge factory
// =============================================================================

// NewJudge builds the configured judge. The lexical provider needs no
// credentials; the openai provider fails fast when its key is missing
// so a misconfigured deployment is caught at startup, not at the first
// verification.
func NewJudge(cfg config.JudgeConfig, cache *VerdictCache) (Judge, error) {
	switch cfg.Provider {
	case "lexical", "":
		return NewLexicalJudge(), nil
	case "openai":
		return NewOpenAIJudge(cfg, cache)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// =============================================================================
// OpenAI judge
// =============================================================================

// entailmentPrompt instructs the model to answer as strict JSON. Kept
// short; the inputs dominate the token cost.
const entailmentPrompt = `You are an entailment judge. Decide whether the CLAIM is fully supported by the EVIDENCE text alone. Do not use outside knowledge.

Respond with ONLY valid JSON (no markdown, no preamble):
{"entailed":bool,"confidence":0.0-1.0}`

const (
	defaultJudgeModel     = "gpt-4o-mini"
	judgeMaxResponseToken = 64
)

// minMlockKB is the locked-memory headroom the enclave wants. One page
// for the key plus memguard's canary pages.
const minMlockKB = 64

// secureMemoryOnce arms memguard's interrupt handler a single time per
// process so locked buffers are wiped on SIGINT.
var secureMemoryOnce sync.Once

func initSecureMemory() {
	secureMemoryOnce.Do(func() {
		memguard.CatchInterrupt()
		if ok, limitKB := checkMlockLimit(); !ok {
			slog.Warn("mlock limit is low; key pages may be swappable",
				slog.Int64("limit_kb", limitKB),
				slog.Int("required_kb", minMlockKB))
		}
	})
}

// checkMlockLimit reports whether RLIMIT_MEMLOCK leaves room for the
// enclave. The limit in KB is -1 when unlimited or undeterminable.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", slog.Any("error", err))
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= minMlockKB, limitKB
}

// OpenAIJudge calls a chat-completion model for entailment decisions.
//
// Description:
//
//	Wraps the model call in the full hardening stack: verdict cache,
//	request coalescing, a concurrency semaphore, an outbound rate
//	limit, and a per-call timeout that degrades to a negative verdict.
//	Transport or parse failures degrade to the lexical judge rather
//	than erroring, so a flaky upstream can slow verification but never
//	break it.
//
// Thread Safety: safe for concurrent use after construction.
type OpenAIJudge struct {
	model      string
	baseURL    string
	apiKey     *memguard.Enclave
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	semaphore  chan struct{}
	inflight   singleflight.Group
	cache      *VerdictCache
	fallback   *LexicalJudge
}

// NewOpenAIJudge reads the API key from the configured environment
// variable, seals it into a memguard enclave, and returns a ready
// judge. cache may be nil to disable memoization.
func NewOpenAIJudge(cfg config.JudgeConfig, cache *VerdictCache) (*OpenAIJudge, error) {
	initSecureMemory()

	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	key := strings.TrimSpace(os.Getenv(keyEnv))
	if key == "" {
		return nil, fmt.Errorf("%w: environment variable %s is empty", ErrNoAPIKey, keyEnv)
	}

	model := cfg.Model
	if model == "" {
		model = defaultJudgeModel
		slog.Warn("Judge model not set, using default", slog.String("model", model))
	}

	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	judge := &OpenAIJudge{
		model: model,
		// NewEnclave wipes the source slice after sealing.
		apiKey:     memguard.NewEnclave([]byte(key)),
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{},
		timeout:    cfg.Timeout(),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		cache:      cache,
		fallback:   NewLexicalJudge(),
	}
	if cfg.MaxConcurrent > 0 {
		judge.semaphore = make(chan struct{}, cfg.MaxConcurrent)
	}

	slog.Info("Initialized entailment judge",
		slog.String("provider", "openai"),
		slog.String("model", model),
		slog.Int("max_concurrent", cfg.MaxConcurrent))
	return judge, nil
}

// Name implements Judge. The model rides in the name so cached verdicts
// never cross models.
func (j *OpenAIJudge) Name() string { return "openai/" + j.model }

// Entails implements Judge.
func (j *OpenAIJudge) Entails(ctx context.Context, claim, evidence string) (Verdict, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	claim = strings.TrimSpace(claim)
	if claim == "" {
		return Verdict{}, nil
	}

	if j.cache != nil {
		if verdict, ok := j.cache.Get(j.Name(), claim, evidence); ok {
			return verdict, nil
		}
	}

	key := coalesceKey(claim, evidence)
	value, err, _ := j.inflight.Do(key, func() (any, error) {
		return j.judge(ctx, claim, evidence)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Verdict{}, err
		}
		slog.Warn("Judge call failed, using lexical fallback",
			slog.String("model", j.model),
			slog.String("error", err.Error()))
		return j.fallback.Entails(ctx, claim, evidence)
	}

	verdict := value.(Verdict)
	if j.cache != nil {
		j.cache.Put(j.Name(), claim, evidence, verdict)
	}
	return verdict, nil
}

// judge performs one model call under the hardening stack.
func (j *OpenAIJudge) judge(ctx context.Context, claim, evidence string) (Verdict, error) {
	if j.semaphore != nil {
		select {
		case j.semaphore <- struct{}{}:
			defer func() { <-j.semaphore }()
		case <-ctx.Done():
			return Verdict{}, ctx.Err()
		}
	}

	if err := j.limiter.Wait(ctx); err != nil {
		return Verdict{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	client, closeKey, err := j.newClient()
	if err != nil {
		return Verdict{}, err
	}
	defer closeKey()

	resp, err := client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: j.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: entailmentPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "CLAIM: " + claim + "\n\nEVIDENCE:\n" + evidence},
		},
		MaxCompletionTokens: judgeMaxResponseToken,
		Temperature:         0,
	})
	if err != nil {
		// A per-call timeout is a negative verdict, not an error. The
		// parent context staying live is what distinguishes the two.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			slog.Warn("Judge call timed out",
				slog.String("model", j.model),
				slog.Duration("timeout", j.timeout))
			return Verdict{Entailed: false, Confidence: 0}, nil
		}
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		return Verdict{}, fmt.Errorf("judge completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Verdict{}, errors.New("judge returned no choices")
	}

	verdict, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return Verdict{}, fmt.Errorf("parse judge response: %w", err)
	}
	return verdict, nil
}

// newClient opens the key enclave for the duration of one call. The
// returned cleanup wipes the locked buffer; the key only exists in
// plaintext while a request is in flight.
func (j *OpenAIJudge) newClient() (*openai.Client, func(), error) {
	buf, err := j.apiKey.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open judge key enclave: %w", err)
	}
	clientCfg := openai.DefaultConfig(buf.String())
	clientCfg.HTTPClient = j.httpClient
	if j.baseURL != "" {
		clientCfg.BaseURL = j.baseURL
	}
	return openai.NewClientWithConfig(clientCfg), buf.Destroy, nil
}

// coalesceKey collapses identical in-flight judgments.
func coalesceKey(claim, evidence string) string {
	h := sha256.New()
	h.Write([]byte(claim))
	h.Write([]byte{0})
	h.Write([]byte(evidence))
	return hex.EncodeToString(h.Sum(nil))
}

// parseVerdict decodes the judge's JSON reply, tolerating markdown
// fences, and clamps confidence into [0,1].
func parseVerdict(content string) (Verdict, error) {
	content = strings.TrimSpace(content)
	if after, ok := strings.CutPrefix(content, "```json"); ok {
		content = after
	} else if after, ok := strings.CutPrefix(content, "```"); ok {
		content = after
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	content = strings.TrimSpace(content)

	var verdict Verdict
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return Verdict{}, err
	}
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}
	return verdict, nil
}
