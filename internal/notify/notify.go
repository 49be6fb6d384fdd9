// Package notify reports finished runs to chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stellarlinkco/meetclaw/internal/bus"
)

type Notifier interface {
	Notify(ctx context.Context, n bus.Notification) error
}

type Nop struct{}

func (Nop) Notify(context.Context, bus.Notification) error { return nil }

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n bus.Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			log.Printf("[notify] %T failed: %v", nt, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const maxSummaryChars = 1500

// Report renders the markdown text sent for a finished run.
func Report(n bus.Notification) string {
	var sb strings.Builder
	if n.Success {
		fmt.Fprintf(&sb, "**Meeting processed:** %s\n", n.Title)
	} else {
		fmt.Fprintf(&sb, "**Meeting failed:** %s\n", n.Title)
	}
	fmt.Fprintf(&sb, "ID: %s\n", n.MeetingID)
	if n.Tier != "" {
		fmt.Fprintf(&sb, "Tier: %s, method: %s\n", n.Tier, n.ProcessingMethod)
	}
	fmt.Fprintf(&sb, "Tool calls: %d, cost: $%.4f, took %s\n", n.ToolCalls, n.TotalCost, n.Duration.Round(time.Second))
	if n.Error != "" {
		fmt.Fprintf(&sb, "\nError: %s\n", firstLine(n.Error))
	}
	if s := strings.TrimSpace(n.Summary); s != "" {
		sb.WriteString("\n")
		sb.WriteString(truncateRunes(s, maxSummaryChars))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
