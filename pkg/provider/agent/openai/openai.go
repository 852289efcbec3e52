// Package openai provides an Agent backed by the OpenAI chat completions API.
//
// It keeps a short rolling conversation history per sender so follow-up
// utterances carry context, and trims the history once it exceeds the
// configured window.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hearsay-ai/hearsay/pkg/provider/agent"
)

const (
	defaultSystemPrompt = "You are a helpful voice assistant. Keep replies short and conversational; they will be spoken aloud."
	defaultHistoryTurns = 16
)

// Agent implements agent.Agent using the OpenAI API.
type Agent struct {
	client       oai.Client
	model        string
	systemPrompt string
	historyTurns int

	mu      sync.Mutex
	history map[string][]oai.ChatCompletionMessageParamUnion
}

var _ agent.Agent = (*Agent)(nil)

// config holds optional configuration for the agent.
type config struct {
	baseURL      string
	timeout      time.Duration
	systemPrompt string
	historyTurns int
}

// Option is a functional option for Agent.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Used to target
// OpenAI-compatible local servers.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *config) { c.systemPrompt = prompt }
}

// WithHistoryTurns caps the number of prior messages kept per sender.
func WithHistoryTurns(n int) Option {
	return func(c *config) { c.historyTurns = n }
}

// New constructs a new OpenAI-backed Agent.
func New(apiKey string, model string, opts ...Option) (*Agent, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{
		systemPrompt: defaultSystemPrompt,
		historyTurns: defaultHistoryTurns,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Agent{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		systemPrompt: cfg.systemPrompt,
		historyTurns: cfg.historyTurns,
		history:      make(map[string][]oai.ChatCompletionMessageParamUnion),
	}, nil
}

// Deliver implements agent.Agent. One call per finalized utterance; the reply
// is appended to the sender's rolling history on success.
func (a *Agent) Deliver(ctx context.Context, senderID, text string) (string, error) {
	a.mu.Lock()
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(a.history[senderID])+2)
	messages = append(messages, oai.SystemMessage(a.systemPrompt))
	messages = append(messages, a.history[senderID]...)
	messages = append(messages, oai.UserMessage(text))
	a.mu.Unlock()

	resp, err := a.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:    a.model,
		Messages: messages,
	})
	if err != nil {
		return "", &agent.Error{Backend: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &agent.Error{Backend: "openai", Err: fmt.Errorf("response contained no choices")}
	}
	reply := resp.Choices[0].Message.Content

	a.mu.Lock()
	h := append(a.history[senderID], oai.UserMessage(text), oai.AssistantMessage(reply))
	if len(h) > a.historyTurns {
		h = h[len(h)-a.historyTurns:]
	}
	a.history[senderID] = h
	a.mu.Unlock()

	return reply, nil
}

// Forget drops the rolling history for senderID.
func (a *Agent) Forget(senderID string) {
	a.mu.Lock()
	delete(a.history, senderID)
	a.mu.Unlock()
}
