package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stellarlinkco/meetclaw/internal/config"
)

var ErrMissingAPIKey = errors.New("missing provider api key")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult answers one ToolCall, keyed by its ID.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Message is one history entry. Assistant turns carry Text and ToolCalls;
// user turns carry Text or ToolResults.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

type Schema struct {
	Properties map[string]any
	Required   []string
}

type ToolDeclaration struct {
	Name        string
	Description string
	Schema      Schema
}

type Request struct {
	Model       string
	System      string
	CacheSystem bool
	Tools       []ToolDeclaration
	Messages    []Message
	MaxTokens   int
}

// Usage counters are disjoint: InputTokens excludes cache writes and reads.
type Usage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheWriteTokens int64 `json:"cache_write_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens"`
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:      u.InputTokens + o.InputTokens,
		OutputTokens:     u.OutputTokens + o.OutputTokens,
		CacheWriteTokens: u.CacheWriteTokens + o.CacheWriteTokens,
		CacheReadTokens:  u.CacheReadTokens + o.CacheReadTokens,
	}
}

type Response struct {
	Text       string
	ToolCalls  []ToolCall
	Usage      Usage
	StopReason string
}

// Client is the completion boundary used by the distiller and the agent loop.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// NewClient builds the client selected by provider.type. Every call is
// bounded by agent.completionTimeoutSec.
func NewClient(cfg *config.Config, httpClient *http.Client) (Client, error) {
	apiKey := strings.TrimSpace(cfg.Provider.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	var c Client
	switch strings.ToLower(strings.TrimSpace(cfg.Provider.Type)) {
	case "", "anthropic":
		c = NewAnthropicClient(apiKey, cfg.Provider.BaseURL, httpClient)
	case "openai":
		c = NewOpenAIClient(apiKey, cfg.Provider.BaseURL, httpClient)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Provider.Type)
	}

	return WithTimeout(c, time.Duration(cfg.Agent.CompletionTimeoutSec)*time.Second), nil
}

type timeoutClient struct {
	inner   Client
	timeout time.Duration
}

// WithTimeout wraps c so every Complete call runs under its own deadline.
func WithTimeout(c Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return c
	}
	return &timeoutClient{inner: c, timeout: timeout}
}

func (t *timeoutClient) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Complete(ctx, req)
}
