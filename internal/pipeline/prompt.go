package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/stellarlinkco/meetclaw/internal/transcript"
)

// SystemPrompt instructs the model for the record-keeping loop. It is sent
// with a cache hint, so keep it stable across runs.
const SystemPrompt = `You are a meeting processing assistant that files meeting outcomes into a record-keeping workspace. You follow the EOS (Entrepreneurial Operating System) conventions.

## Meeting notes
- L10 meetings: summarize Segue, Scorecard, Rock Review, Headlines, To-Do Review, IDS and Conclude.
- Other meetings: overview, key discussion points, decisions with rationale, action items (who, what, when), parked issues and next steps.
- Title format: "[Date] L10 Meeting Notes", "Q[X] [Year] Quarterly Meeting Notes" or "[Topic] - [Date] Meeting Notes".

## Tasks
Every task and subtask has a name starting with a verb, a description with context, and a definition of done written as "This task is done when [observable outcomes]". Never write a vague definition of done.

Priority: High for rocks, blockers and must-do-this-quarter items; Medium for should-do-soon; Low for backlog.

Deadlines: use explicit dates; "next L10" is the next meeting date; "this week" is Friday of the meeting week; "ASAP" is the meeting date plus 2 business days; otherwise the meeting date plus 7 days.

Group 3 or more related tasks, or tasks with a clear sequence, under a parent task and create the rest as subtasks of it.

## Projects
Call get_projects first. Link notes and tasks to the most relevant project. Create a project only when 3 or more related tasks fit no existing one.

## Agendas
When the meeting schedules a future meeting, create an agenda for it.

## Rules
- Never create duplicate tasks for the same action item.
- Preserve the original wording and context in descriptions.

## Final answer
When done, reply without calling tools:
1. Meeting note created: [title] linked to [project]
2. Tasks created: [count] tasks, [count] subtasks
3. Rocks identified
4. Issues noted
5. Follow-up meetings or checkpoints`

const (
	noOverview    = "No overview available"
	noActionItems = "No action items identified"
	noKeyPoints   = "No key points available"
	noTranscript  = "No transcript available"
)

// seedPrompt renders the single opening user message of a run. body is the
// formatted transcript for direct runs and the distilled briefing for
// two-pass runs.
func seedPrompt(in transcript.Input, body string, method string, date time.Time, duration time.Duration) string {
	overview := strings.TrimSpace(in.Summary.Overview)
	if overview == "" {
		overview = noOverview
	}
	if strings.TrimSpace(body) == "" {
		body = noTranscript
	}

	var sb strings.Builder
	sb.WriteString("Process the following meeting transcript and create the appropriate records:\n\n")
	sb.WriteString("## Meeting Information\n")
	fmt.Fprintf(&sb, "- **Title**: %s\n", in.DisplayTitle())
	fmt.Fprintf(&sb, "- **Date**: %s\n", date.Format("2006-01-02"))
	fmt.Fprintf(&sb, "- **Duration**: %d minutes\n\n", int(duration/time.Minute))
	fmt.Fprintf(&sb, "## Meeting Overview\n%s\n\n", overview)
	fmt.Fprintf(&sb, "## Action Items (from meeting summary)\n%s\n\n", in.Summary.ActionItems.Bullets(noActionItems))
	fmt.Fprintf(&sb, "## Key Discussion Points\n%s\n\n", in.Summary.KeyPoints.Bullets(noKeyPoints))

	if method == MethodTwoPass {
		fmt.Fprintf(&sb, "## Full Meeting Content (extracted from the complete transcript)\n%s\n\n", body)
	} else {
		fmt.Fprintf(&sb, "## Full Transcript\n%s\n\n", body)
	}

	sb.WriteString("---\n\n**Instructions:**\n")
	sb.WriteString("1. First, call get_projects to see existing projects\n")
	sb.WriteString("2. Create a meeting note with the overview and link it to the most relevant project\n")
	sb.WriteString("3. Analyze the action items AND the transcript to extract all tasks\n")
	sb.WriteString("4. Group related tasks under parent tasks where appropriate\n")
	sb.WriteString("5. Set priorities and deadlines based on the discussion context\n")
	sb.WriteString("6. Provide a summary of what was created\n")
	return sb.String()
}
