package tools

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarlinkco/meetclaw/internal/backend"
)

type fakeBackend struct {
	mu              sync.Mutex
	projects        []backend.Project
	listErr         error
	createErr       error
	calls           map[string]int
	tasks           []backend.Task
	notes           []backend.Note
	agendas         []backend.Agenda
	projectsCreated []backend.NewProject
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: map[string]int{}}
}

func (f *fakeBackend) count(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeBackend) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) ListProjects(ctx context.Context) ([]backend.Project, error) {
	f.count("list")
	return f.projects, f.listErr
}

func (f *fakeBackend) CreateNote(ctx context.Context, n backend.Note) (string, error) {
	f.count("note")
	f.notes = append(f.notes, n)
	return "note-1", f.createErr
}

func (f *fakeBackend) CreateTask(ctx context.Context, t backend.Task) (string, error) {
	f.count("task")
	f.tasks = append(f.tasks, t)
	return "task-1", f.createErr
}

func (f *fakeBackend) CreateSubtask(ctx context.Context, t backend.Task) (string, error) {
	f.count("subtask")
	f.tasks = append(f.tasks, t)
	return "sub-1", f.createErr
}

func (f *fakeBackend) CreateProject(ctx context.Context, p backend.NewProject) (string, error) {
	f.count("project")
	f.projectsCreated = append(f.projectsCreated, p)
	return "proj-1", f.createErr
}

func (f *fakeBackend) CreateAgenda(ctx context.Context, a backend.Agenda) (string, error) {
	f.count("agenda")
	f.agendas = append(f.agendas, a)
	return "agenda-1", f.createErr
}

func TestExecute_GetProjectsCachedPerSession(t *testing.T) {
	fb := newFakeBackend()
	fb.projects = []backend.Project{{ID: "p1", Name: "Website", Status: "Active"}, {ID: "p2", Name: "Ops"}}
	e := NewExecutor(fb)
	cache := NewSessionCache()

	first := e.Execute(context.Background(), GetProjects, nil, cache)
	second := e.Execute(context.Background(), GetProjects, map[string]any{}, cache)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fb.Calls("list"))
	assert.Equal(t, "Found 2 projects:\n- Website (ID: p1, Status: Active)\n- Ops (ID: p2, Status: Unknown)", first)

	// A fresh session does not share the cache.
	e.Execute(context.Background(), GetProjects, nil, NewSessionCache())
	assert.Equal(t, 2, fb.Calls("list"))
}

func TestExecute_FailedCacheableCallNotCached(t *testing.T) {
	fb := newFakeBackend()
	fb.listErr = errors.New("bridge down")
	e := NewExecutor(fb)
	cache := NewSessionCache()

	got := e.Execute(context.Background(), GetProjects, nil, cache)
	assert.Equal(t, "Error executing get_projects: bridge down", got)
	assert.Equal(t, 0, cache.Len())

	fb.listErr = nil
	got = e.Execute(context.Background(), GetProjects, nil, cache)
	assert.Equal(t, "No projects found in the database.", got)
	assert.Equal(t, 2, fb.Calls("list"))
}

func TestExecute_MutatingToolsNeverDeduplicated(t *testing.T) {
	fb := newFakeBackend()
	e := NewExecutor(fb)
	cache := NewSessionCache()
	args := map[string]any{"name": "Send report", "due_date": "2025-01-10"}

	r1 := e.Execute(context.Background(), CreateTask, args, cache)
	r2 := e.Execute(context.Background(), CreateTask, args, cache)

	assert.Equal(t, 2, fb.Calls("task"))
	assert.Equal(t, r1, r2)
	assert.Equal(t, "Created task 'Send report' (ID: task-1, Priority: Medium, Due: 2025-01-10)", r1)
	assert.Equal(t, DefaultTaskStatus, fb.tasks[0].Status)
}

func TestExecute_UnknownTool(t *testing.T) {
	fb := newFakeBackend()
	got := NewExecutor(fb).Execute(context.Background(), "delete_everything", nil, nil)
	assert.Equal(t, "Unknown tool: delete_everything", got)
}

func TestExecute_InvalidArgumentsSkipBackend(t *testing.T) {
	fb := newFakeBackend()
	e := NewExecutor(fb)

	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{"missing name", CreateTask, map[string]any{"priority": "High"}, "name is required"},
		{"subtask without parent", CreateSubtask, map[string]any{"name": "x"}, "parent_task_id is required"},
		{"list of non strings", CreateMeetingNote, map[string]any{"title": "t", "action_items": []any{"ok", 3.0}}, "action_items[1] must be a string"},
		{"bad number", CreateAgenda, map[string]any{"title": "t", "meeting_date": "2025-01-01", "duration_minutes": "long"}, "duration_minutes must be a number"},
		{"object for string", CreateProject, map[string]any{"name": map[string]any{"x": 1}}, "name must be a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Execute(context.Background(), tt.tool, tt.args, nil)
			assert.True(t, strings.HasPrefix(got, "Invalid arguments for "+tt.tool+": "), got)
			assert.Contains(t, got, tt.want)
		})
	}
	assert.Empty(t, fb.calls)
}

func TestExecute_BackendErrorBecomesResult(t *testing.T) {
	fb := newFakeBackend()
	fb.createErr = errors.New("create project: backend http 500: notion down")
	got := NewExecutor(fb).Execute(context.Background(), CreateProject, map[string]any{"name": "New"}, nil)
	assert.Equal(t, "Error executing create_project: create project: backend http 500: notion down", got)
}

func TestExecute_Defaults(t *testing.T) {
	fb := newFakeBackend()
	e := NewExecutor(fb)
	ctx := context.Background()

	got := e.Execute(ctx, CreateProject, map[string]any{"name": "Hiring"}, nil)
	assert.Equal(t, "Created project 'Hiring' with ID: proj-1", got)
	require.Len(t, fb.projectsCreated, 1)
	assert.Equal(t, DefaultProjectStatus, fb.projectsCreated[0].Status)

	got = e.Execute(ctx, CreateAgenda, map[string]any{"title": "Next L10", "meeting_date": "2025-02-01", "attendees": []any{"Ann", "Bo"}}, nil)
	assert.Equal(t, "Created meeting agenda 'Next L10' for 2025-02-01 with ID: agenda-1", got)
	require.Len(t, fb.agendas, 1)
	assert.Equal(t, DefaultAgendaMinutes, fb.agendas[0].DurationMinutes)
	assert.Equal(t, DefaultAgendaType, fb.agendas[0].MeetingType)
	assert.Equal(t, []string{"Ann", "Bo"}, fb.agendas[0].Attendees)

	got = e.Execute(ctx, CreateSubtask, map[string]any{"name": "Draft", "parent_task_id": "t9", "priority": "high"}, nil)
	assert.Equal(t, "Created subtask 'Draft' under parent task (ID: sub-1)", got)
	assert.Equal(t, "High", fb.tasks[0].Priority)
	assert.Equal(t, "t9", fb.tasks[0].ParentTaskID)

	got = e.Execute(ctx, CreateMeetingNote, map[string]any{"title": "Weekly", "duration_seconds": 1799.6, "key_points": "one point"}, nil)
	assert.Equal(t, "Created meeting note 'Weekly' with ID: note-1", got)
	require.Len(t, fb.notes, 1)
	assert.Equal(t, 1800, fb.notes[0].DurationSeconds)
	assert.Equal(t, []string{"one point"}, fb.notes[0].KeyPoints)
}

func TestDeclarations(t *testing.T) {
	e := NewExecutor(newFakeBackend())
	decls := e.Declarations()
	names := make([]string, 0, len(decls))
	for _, d := range decls {
		names = append(names, d.Name)
		if d.Description == "" {
			t.Errorf("%s has no description", d.Name)
		}
		for _, req := range d.Schema.Required {
			if _, ok := d.Schema.Properties[req]; !ok {
				t.Errorf("%s requires undeclared property %s", d.Name, req)
			}
		}
	}
	assert.Equal(t, []string{GetProjects, CreateMeetingNote, CreateTask, CreateSubtask, CreateProject, CreateAgenda}, names)
	assert.True(t, e.IsCacheable(GetProjects))
	assert.False(t, e.IsCacheable(CreateTask))
}
