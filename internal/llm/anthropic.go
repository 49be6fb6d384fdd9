package llm

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"
)

type anthropicMessages interface {
	New(ctx context.Context, params anthropicsdk.MessageNewParams, opts ...option.RequestOption) (*anthropicsdk.Message, error)
}

// AnthropicClient drives the Anthropic Messages API.
type AnthropicClient struct {
	msgs anthropicMessages
}

func NewAnthropicClient(apiKey, baseURL string, httpClient *http.Client) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client := anthropicsdk.NewClient(opts...)
	return &AnthropicClient{msgs: &client.Messages}
}

func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  toAnthropicMessages(req.Messages),
	}
	if system := strings.TrimSpace(req.System); system != "" {
		block := anthropicsdk.TextBlockParam{Text: system}
		if req.CacheSystem {
			block.CacheControl = anthropicsdk.NewCacheControlEphemeralParam()
		}
		params.System = []anthropicsdk.TextBlockParam{block}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	msg, err := c.msgs.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	return fromAnthropicMessage(msg), nil
}

func toAnthropicMessages(msgs []Message) []anthropicsdk.MessageParam {
	out := make([]anthropicsdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var blocks []anthropicsdk.ContentBlockParamUnion
		switch m.Role {
		case RoleAssistant:
			if strings.TrimSpace(m.Text) != "" {
				blocks = append(blocks, anthropicsdk.NewTextBlock(m.Text))
			}
			for _, call := range m.ToolCalls {
				input := call.Input
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropicsdk.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropicsdk.NewTextBlock("."))
			}
			out = append(out, anthropicsdk.MessageParam{Role: anthropicsdk.MessageParamRoleAssistant, Content: blocks})
		default:
			for _, res := range m.ToolResults {
				blocks = append(blocks, anthropicsdk.NewToolResultBlock(res.ToolCallID, res.Content, res.IsError))
			}
			if m.Text != "" || len(blocks) == 0 {
				blocks = append(blocks, anthropicsdk.NewTextBlock(m.Text))
			}
			out = append(out, anthropicsdk.MessageParam{Role: anthropicsdk.MessageParamRoleUser, Content: blocks})
		}
	}
	return out
}

func toAnthropicTools(tools []ToolDeclaration) []anthropicsdk.ToolUnionParam {
	out := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, def := range tools {
		props := def.Schema.Properties
		if props == nil {
			props = map[string]any{}
		}
		tool := anthropicsdk.ToolParam{
			Name: def.Name,
			InputSchema: anthropicsdk.ToolInputSchemaParam{
				Properties: props,
				Required:   def.Schema.Required,
			},
		}
		if def.Description != "" {
			tool.Description = anthropicsdk.String(def.Description)
		}
		out = append(out, anthropicsdk.ToolUnionParam{OfTool: &tool})
	}
	return out
}

func fromAnthropicMessage(msg *anthropicsdk.Message) *Response {
	resp := &Response{
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:      msg.Usage.InputTokens,
			OutputTokens:     msg.Usage.OutputTokens,
			CacheWriteTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadTokens:  msg.Usage.CacheReadInputTokens,
		},
	}

	var texts []string
	for _, block := range msg.Content {
		switch block.Type {
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: decodeArgs(string(block.Input)),
			})
		case "text":
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		}
	}
	resp.Text = strings.Join(texts, "\n")
	return resp
}

// decodeArgs parses tool arguments. Non-object payloads are kept under "raw"
// so the executor can report them.
func decodeArgs(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	v := gjson.Parse(raw)
	if !gjson.Valid(raw) || !v.IsObject() {
		log.Printf("[llm] tool arguments are not a JSON object: %.80s", raw)
		return map[string]any{"raw": raw}
	}
	if m, ok := v.Value().(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
