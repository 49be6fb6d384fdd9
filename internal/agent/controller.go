// Package agent drives the bounded tool-calling loop of one processing run.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/stellarlinkco/meetclaw/internal/llm"
	"github.com/stellarlinkco/meetclaw/internal/tools"
	"github.com/stellarlinkco/meetclaw/internal/usage"
)

var ErrNilClient = errors.New("agent: completion client is nil")

type State int

const (
	AwaitingModel State = iota
	ExecutingTools
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingModel:
		return "awaiting_model"
	case ExecutingTools:
		return "executing_tools"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ToolRunner executes tool invocations and describes the available tools.
type ToolRunner interface {
	Execute(ctx context.Context, name string, args map[string]any, cache *tools.SessionCache) string
	Declarations() []llm.ToolDeclaration
}

type Options struct {
	Model       string
	System      string
	CacheSystem bool
	MaxTokens   int
	// MaxIterations caps completion calls per run. Values below one become one.
	MaxIterations int
}

// Outcome is the terminal state of a run. A run that hits the iteration
// ceiling ends in Done with CeilingReached set.
type Outcome struct {
	State          State
	Summary        string
	Iterations     int
	CeilingReached bool
	ToolCalls      []tools.CallRecord
	Err            error
}

type Controller struct {
	client     llm.Client
	runner     ToolRunner
	accountant *usage.Accountant
	opts       Options
}

func New(client llm.Client, runner ToolRunner, accountant *usage.Accountant, opts Options) (*Controller, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if runner == nil {
		return nil, errors.New("agent: tool runner is nil")
	}
	if accountant == nil {
		accountant = usage.NewAccountant()
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 1
	}
	return &Controller{client: client, runner: runner, accountant: accountant, opts: opts}, nil
}

// Run alternates completion calls and tool execution, starting from a
// history holding only the seed prompt.
func (c *Controller) Run(ctx context.Context, seed string) Outcome {
	history := []llm.Message{llm.UserText(seed)}
	cache := tools.NewSessionCache()
	decls := c.runner.Declarations()

	out := Outcome{State: AwaitingModel}
	lastText := ""

	for {
		if out.Iterations >= c.opts.MaxIterations {
			log.Printf("[agent] iteration ceiling (%d) reached", c.opts.MaxIterations)
			out.State = Done
			out.CeilingReached = true
			out.Summary = lastText
			return out
		}
		if err := ctx.Err(); err != nil {
			return c.fail(out, fmt.Errorf("completion call %d: %w", out.Iterations+1, err))
		}

		resp, err := c.client.Complete(ctx, llm.Request{
			Model:       c.opts.Model,
			System:      c.opts.System,
			CacheSystem: c.opts.CacheSystem,
			Tools:       decls,
			Messages:    history,
			MaxTokens:   c.opts.MaxTokens,
		})
		out.Iterations++
		if err != nil {
			return c.fail(out, fmt.Errorf("completion call %d: %w", out.Iterations, err))
		}
		c.accountant.Record(resp.Usage)

		history = append(history, llm.Message{
			Role:      llm.RoleAssistant,
			Text:      resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		if strings.TrimSpace(resp.Text) != "" {
			lastText = resp.Text
		}

		if len(resp.ToolCalls) == 0 {
			log.Printf("[agent] done after %d iterations", out.Iterations)
			out.State = Done
			out.Summary = resp.Text
			return out
		}

		out.State = ExecutingTools
		log.Printf("[agent] iteration %d: %d tool calls", out.Iterations, len(resp.ToolCalls))
		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				return c.fail(out, fmt.Errorf("tool %s: %w", call.Name, err))
			}
			args := call.Input
			if args == nil {
				args = map[string]any{}
			}
			result := c.runner.Execute(ctx, call.Name, args, cache)
			log.Printf("[agent] %s -> %s", call.Name, truncate(result, 120))

			results = append(results, llm.ToolResult{ToolCallID: call.ID, Content: result})
			out.ToolCalls = append(out.ToolCalls, tools.CallRecord{
				ID:     call.ID,
				Name:   call.Name,
				Input:  args,
				Result: result,
			})
		}
		history = append(history, llm.Message{Role: llm.RoleUser, ToolResults: results})
		out.State = AwaitingModel
	}
}

func (c *Controller) fail(out Outcome, err error) Outcome {
	log.Printf("[agent] run failed: %v", err)
	out.State = Failed
	out.Err = err
	return out
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
