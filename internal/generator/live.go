// Live generation via an OpenAI-compatible chat-completions endpoint.
// Grounded on the teacher's internal/providers.OpenAIProvider: same
// http.Client + retry.Config shape and the same OpenAI-compatible
// request/response wire structs (that provider already targets OpenAI,
// Groq, OpenRouter, DeepSeek, vLLM — any LLM_BASE_URL pointed at a
// compatible endpoint is a direct reuse of the wire format, not a rewrite).
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/chatsim/chatsim/internal/retry"
)

const defaultChatPath = "/chat/completions"

// Live calls an OpenAI-compatible chat endpoint to produce a single line.
// Concurrency is bounded by a process-wide semaphore (max_llm_concurrency);
// calls carry a bounded timeout (default 3s); timeout or error yields "".
type Live struct {
	apiBase  string
	apiKey   string
	model    string
	client   *http.Client
	sem      *semaphore.Weighted
	timeout  time.Duration
	retryCfg retry.Config

	OnFailure func(err error) // telemetry hook; nil is fine
}

// NewLive builds a Live generator. maxConcurrency<=0 defaults to 8 (spec.md §4.6/§5).
func NewLive(apiBase, apiKey, model string, maxConcurrency int, timeout time.Duration) *Live {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Live{
		apiBase:  strings.TrimRight(apiBase, "/"),
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: timeout + 2*time.Second},
		sem:      semaphore.NewWeighted(int64(maxConcurrency)),
		timeout:  timeout,
		retryCfg: retry.Default(),
	}
}

type chatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []chatAPIMessage  `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

type chatAPIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatAPIMessage `json:"message"`
	} `json:"choices"`
}

func (l *Live) Generate(ctx context.Context, gctx Context) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("generator: acquire concurrency slot: %w", err)
	}
	defer l.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	body := chatCompletionRequest{
		Model:       l.model,
		MaxTokens:   128,
		Temperature: 0.9,
		Messages:    buildPrompt(gctx),
	}

	resp, err := retry.Do(callCtx, l.retryCfg, isRetryableHTTPErr, func() (*chatCompletionResponse, error) {
		return l.doRequest(callCtx, body)
	})
	if err != nil {
		if l.OnFailure != nil {
			l.OnFailure(err)
		}
		return "", nil // spec.md §4.6: timeout/error -> empty, caller drops the post
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func isRetryableHTTPErr(err error) bool {
	return err != nil // any transport/decoding error is worth one more attempt within the deadline
}

func (l *Live) doRequest(ctx context.Context, body chatCompletionRequest) (*chatCompletionResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("generator: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.apiBase+defaultChatPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("generator: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generator: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("generator: llm_error status=%d body=%s", resp.StatusCode, string(data))
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("generator: decode response: %w", err)
	}
	return &out, nil
}

// buildPrompt assembles persona/system prompt, observation summary, sampled
// chat (humans preferred), and memory bullets into a chat message list.
func buildPrompt(gctx Context) []chatAPIMessage {
	var sys strings.Builder
	sys.WriteString(gctx.Persona.SystemPrompt)
	if sys.Len() == 0 {
		fmt.Fprintf(&sys, "You are %s, a chat persona watching a livestream.", gctx.Persona.DisplayName)
	}
	for _, rule := range gctx.Persona.VoiceRules {
		sys.WriteString("\nVoice rule: " + rule)
	}
	for _, never := range gctx.Persona.HardNeverCategories {
		sys.WriteString("\nNever: " + never)
	}
	if gctx.DriftSummary != "" {
		sys.WriteString("\nCurrent mood: " + gctx.DriftSummary)
	}
	if gctx.ObservationSummary != "" {
		sys.WriteString("\nWhat's happening on stream: " + gctx.ObservationSummary)
	}
	for _, bullet := range gctx.MemoryBullets {
		sys.WriteString("\nRemember: " + bullet)
	}
	fmt.Fprintf(&sys, "\nReply with exactly one short chat line, at most %d characters. No markdown, no quotes.", gctx.MaxChars)

	messages := []chatAPIMessage{{Role: "system", Content: sys.String()}}
	for _, m := range gctx.RecentChat {
		messages = append(messages, chatAPIMessage{Role: "user", Content: m.DisplayName + ": " + m.Content})
	}
	messages = append(messages, chatAPIMessage{Role: "user", Content: gctx.Trigger.DisplayName + ": " + gctx.Trigger.Content})
	return messages
}
