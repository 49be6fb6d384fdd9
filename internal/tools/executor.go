// Package tools exposes the record-keeping operations to the model and
// executes the invocations it emits.
package tools

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/stellarlinkco/meetclaw/internal/backend"
	"github.com/stellarlinkco/meetclaw/internal/llm"
)

const (
	GetProjects       = "get_projects"
	CreateMeetingNote = "create_meeting_note"
	CreateTask        = "create_task"
	CreateSubtask     = "create_subtask"
	CreateProject     = "create_project"
	CreateAgenda      = "create_agenda"
)

const (
	DefaultPriority        = "Medium"
	DefaultTaskStatus      = "To Do"
	DefaultProjectStatus   = "Planned"
	DefaultAgendaMinutes   = 90
	DefaultAgendaType      = "L10"
	defaultDueDateDisplay  = "Not set"
	defaultStatusDisplay   = "Unknown"
	emptyProjectListResult = "No projects found in the database."
)

// CallRecord is one executed tool invocation.
type CallRecord struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Input  map[string]any `json:"input"`
	Result string         `json:"result"`
}

// SessionCache holds results of cacheable tools for one run.
type SessionCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewSessionCache() *SessionCache {
	return &SessionCache{entries: make(map[string]string)}
}

func (c *SessionCache) Get(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[name]
	return v, ok
}

func (c *SessionCache) Put(name, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = result
}

func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type handler func(ctx context.Context, r *argReader) (string, error)

// Executor dispatches tool invocations to the backend. Results are always
// strings; failures are described rather than returned.
type Executor struct {
	backend   backend.Backend
	handlers  map[string]handler
	cacheable map[string]bool
}

func NewExecutor(b backend.Backend) *Executor {
	e := &Executor{
		backend:   b,
		cacheable: map[string]bool{GetProjects: true},
	}
	e.handlers = map[string]handler{
		GetProjects:       e.getProjects,
		CreateMeetingNote: e.createMeetingNote,
		CreateTask:        e.createTask,
		CreateSubtask:     e.createSubtask,
		CreateProject:     e.createProject,
		CreateAgenda:      e.createAgenda,
	}
	return e
}

// IsCacheable reports whether repeated calls to name within a run may reuse
// the first successful result.
func (e *Executor) IsCacheable(name string) bool {
	return e.cacheable[name]
}

// Execute runs one invocation. cache may be nil, which disables caching.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any, cache *SessionCache) string {
	h, ok := e.handlers[name]
	if !ok {
		log.Printf("[tools] unknown tool requested: %s", name)
		return fmt.Sprintf("Unknown tool: %s", name)
	}

	if cache != nil && e.IsCacheable(name) {
		if cached, hit := cache.Get(name); hit {
			log.Printf("[tools] %s served from session cache", name)
			return cached
		}
	}

	r := newArgReader(args)
	result, err := h(ctx, r)
	if verr := r.err(); verr != nil {
		log.Printf("[tools] %s rejected: %v", name, verr)
		return fmt.Sprintf("Invalid arguments for %s: %v", name, verr)
	}
	if err != nil {
		log.Printf("[tools] %s failed: %v", name, err)
		return fmt.Sprintf("Error executing %s: %v", name, err)
	}

	if cache != nil && e.IsCacheable(name) {
		cache.Put(name, result)
	}
	return result
}

func (e *Executor) getProjects(ctx context.Context, _ *argReader) (string, error) {
	projects, err := e.backend.ListProjects(ctx)
	if err != nil {
		return "", err
	}
	if len(projects) == 0 {
		return emptyProjectListResult, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d projects:", len(projects))
	for _, p := range projects {
		status := p.Status
		if status == "" {
			status = defaultStatusDisplay
		}
		fmt.Fprintf(&sb, "\n- %s (ID: %s, Status: %s)", p.Name, p.ID, status)
	}
	return sb.String(), nil
}

func (e *Executor) createMeetingNote(ctx context.Context, r *argReader) (string, error) {
	note := backend.Note{
		Title:           r.str("title", true),
		Date:            r.str("date", false),
		DurationSeconds: r.integer("duration_seconds", 0),
		Overview:        r.str("overview", false),
		ActionItems:     r.strList("action_items"),
		KeyPoints:       r.strList("key_points"),
		ProjectID:       r.str("project_id", false),
	}
	if r.err() != nil {
		return "", nil
	}
	id, err := e.backend.CreateNote(ctx, note)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created meeting note '%s' with ID: %s", note.Title, id), nil
}

func (e *Executor) readTask(r *argReader) backend.Task {
	return backend.Task{
		Name:             r.str("name", true),
		Description:      r.str("description", false),
		DefinitionOfDone: r.str("definition_of_done", false),
		Priority:         normalizePriority(r.strDefault("priority", DefaultPriority)),
		DueDate:          r.str("due_date", false),
		Status:           r.strDefault("status", DefaultTaskStatus),
		ProjectID:        r.str("project_id", false),
	}
}

func (e *Executor) createTask(ctx context.Context, r *argReader) (string, error) {
	task := e.readTask(r)
	if r.err() != nil {
		return "", nil
	}
	id, err := e.backend.CreateTask(ctx, task)
	if err != nil {
		return "", err
	}
	due := task.DueDate
	if due == "" {
		due = defaultDueDateDisplay
	}
	return fmt.Sprintf("Created task '%s' (ID: %s, Priority: %s, Due: %s)", task.Name, id, task.Priority, due), nil
}

func (e *Executor) createSubtask(ctx context.Context, r *argReader) (string, error) {
	task := e.readTask(r)
	task.ParentTaskID = r.str("parent_task_id", true)
	if r.err() != nil {
		return "", nil
	}
	id, err := e.backend.CreateSubtask(ctx, task)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created subtask '%s' under parent task (ID: %s)", task.Name, id), nil
}

func (e *Executor) createProject(ctx context.Context, r *argReader) (string, error) {
	p := backend.NewProject{
		Name:        r.str("name", true),
		Description: r.str("description", false),
		Status:      r.strDefault("status", DefaultProjectStatus),
	}
	if r.err() != nil {
		return "", nil
	}
	id, err := e.backend.CreateProject(ctx, p)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created project '%s' with ID: %s", p.Name, id), nil
}

func (e *Executor) createAgenda(ctx context.Context, r *argReader) (string, error) {
	a := backend.Agenda{
		Title:           r.str("title", true),
		MeetingDate:     r.str("meeting_date", true),
		MeetingType:     r.strDefault("meeting_type", DefaultAgendaType),
		DurationMinutes: r.integer("duration_minutes", DefaultAgendaMinutes),
		Location:        r.str("location", false),
		Facilitator:     r.str("facilitator", false),
		Attendees:       r.strList("attendees"),
		RocksToReview:   r.strList("rocks_to_review"),
		KnownIssues:     r.strList("known_issues"),
		AgendaItems:     r.strList("agenda_items"),
		ProjectID:       r.str("project_id", false),
	}
	if a.DurationMinutes <= 0 {
		a.DurationMinutes = DefaultAgendaMinutes
	}
	if r.err() != nil {
		return "", nil
	}
	id, err := e.backend.CreateAgenda(ctx, a)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created meeting agenda '%s' for %s with ID: %s", a.Title, a.MeetingDate, id), nil
}

func normalizePriority(p string) string {
	switch strings.ToLower(p) {
	case "high":
		return "High"
	case "medium":
		return "Medium"
	case "low":
		return "Low"
	default:
		return p
	}
}

// Declarations describes every tool to the model.
func (e *Executor) Declarations() []llm.ToolDeclaration {
	return declarations
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func stringsProp(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
}

func taskProperties() map[string]any {
	return map[string]any{
		"name":               stringProp("Actionable task name starting with a verb"),
		"description":        stringProp("Context and what needs to be done"),
		"definition_of_done": stringProp("This task is done when ... (observable outcomes)"),
		"priority": map[string]any{
			"type":        "string",
			"enum":        []string{"High", "Medium", "Low"},
			"description": "Task priority (default Medium)",
		},
		"due_date":           stringProp("Due date as YYYY-MM-DD"),
		"status":             stringProp("Task status (default To Do)"),
		"project_id":         stringProp("ID of the project to link"),
	}
}

var declarations = func() []llm.ToolDeclaration {
	subtask := taskProperties()
	subtask["parent_task_id"] = stringProp("ID of the parent task")

	return []llm.ToolDeclaration{
		{
			Name:        GetProjects,
			Description: "Retrieve all existing projects. Use this first to find relevant projects for linking tasks and notes.",
		},
		{
			Name:        CreateMeetingNote,
			Description: "Create a meeting note with overview, action items, and key points.",
			Schema: llm.Schema{
				Properties: map[string]any{
					"title":            stringProp("Meeting title"),
					"date":             stringProp("Meeting date as YYYY-MM-DD"),
					"duration_seconds": intProp("Meeting length in seconds"),
					"overview":         stringProp("Meeting overview"),
					"action_items":     stringsProp("Action items"),
					"key_points":       stringsProp("Key discussion points"),
					"project_id":       stringProp("ID of the project to link"),
				},
				Required: []string{"title"},
			},
		},
		{
			Name:        CreateTask,
			Description: "Create a task. Can optionally link to a project.",
			Schema:      llm.Schema{Properties: taskProperties(), Required: []string{"name"}},
		},
		{
			Name:        CreateSubtask,
			Description: "Create a subtask linked to a parent task. Use this to break down larger tasks into actionable steps.",
			Schema:      llm.Schema{Properties: subtask, Required: []string{"name", "parent_task_id"}},
		},
		{
			Name:        CreateProject,
			Description: "Create a new project. Only use when multiple related tasks (3+) don't fit any existing project.",
			Schema: llm.Schema{
				Properties: map[string]any{
					"name":        stringProp("Project name"),
					"description": stringProp("Project description"),
					"status":      stringProp("Project status (default Planned)"),
				},
				Required: []string{"name"},
			},
		},
		{
			Name:        CreateAgenda,
			Description: "Create an agenda for an upcoming meeting discussed in the transcript.",
			Schema: llm.Schema{
				Properties: map[string]any{
					"title":            stringProp("Agenda title"),
					"meeting_date":     stringProp("Meeting date as YYYY-MM-DD"),
					"meeting_type":     stringProp("Meeting type, e.g. L10 (default)"),
					"duration_minutes": intProp("Planned length in minutes (default 90)"),
					"location":         stringProp("Where the meeting takes place"),
					"facilitator":      stringProp("Who runs the meeting"),
					"attendees":        stringsProp("Attendee names"),
					"rocks_to_review":  stringsProp("Quarterly rocks to review"),
					"known_issues":     stringsProp("Issues carried over for IDS"),
					"agenda_items":     stringsProp("Additional agenda items"),
					"project_id":       stringProp("ID of the project to link"),
				},
				Required: []string{"title", "meeting_date"},
			},
		},
	}
}()
