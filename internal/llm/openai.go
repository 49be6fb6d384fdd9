package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

type openaiCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIClient drives an OpenAI compatible Chat Completions endpoint.
type OpenAIClient struct {
	completions openaiCompletions
}

func NewOpenAIClient(apiKey, baseURL string, httpClient *http.Client) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client := openai.NewClient(opts...)
	return &OpenAIClient{completions: &client.Chat.Completions}
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: toOpenAIMessages(req.System, req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	completion, err := c.completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completions: %w", err)
	}
	return fromOpenAICompletion(completion), nil
}

func toOpenAIMessages(system string, msgs []Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if s := strings.TrimSpace(system); s != "" {
		out = append(out, openai.SystemMessage(s))
	}
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Text != "" || len(m.ToolCalls) == 0 {
				text := m.Text
				if text == "" {
					text = "."
				}
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(text),
				}
			}
			for _, call := range m.ToolCalls {
				args, _ := json.Marshal(call.Input)
				if call.Input == nil {
					args = []byte("{}")
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		default:
			for _, res := range m.ToolResults {
				out = append(out, openai.ToolMessage(res.Content, res.ToolCallID))
			}
			if m.Text != "" || len(m.ToolResults) == 0 {
				out = append(out, openai.UserMessage(m.Text))
			}
		}
	}
	return out
}

func toOpenAITools(tools []ToolDeclaration) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, def := range tools {
		props := def.Schema.Properties
		if props == nil {
			props = map[string]any{}
		}
		params := shared.FunctionParameters{
			"type":       "object",
			"properties": props,
		}
		if len(def.Schema.Required) > 0 {
			params["required"] = def.Schema.Required
		}
		tool := openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:       def.Name,
				Parameters: params,
			},
		}
		if def.Description != "" {
			tool.Function.Description = openai.String(def.Description)
		}
		out = append(out, tool)
	}
	return out
}

func fromOpenAICompletion(completion *openai.ChatCompletion) *Response {
	resp := &Response{}
	if completion == nil {
		return resp
	}

	// Cached prompt tokens are reported inside prompt_tokens; split them out.
	cached := completion.Usage.PromptTokensDetails.CachedTokens
	input := completion.Usage.PromptTokens - cached
	if input < 0 {
		input = 0
	}
	resp.Usage = Usage{
		InputTokens:     input,
		OutputTokens:    completion.Usage.CompletionTokens,
		CacheReadTokens: cached,
	}

	if len(completion.Choices) == 0 {
		return resp
	}
	choice := completion.Choices[0]
	resp.Text = choice.Message.Content
	resp.StopReason = choice.FinishReason
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: decodeArgs(tc.Function.Arguments),
		})
	}
	return resp
}
