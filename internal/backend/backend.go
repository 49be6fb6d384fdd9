// Package backend talks to the record-keeping bridge that stores notes,
// tasks, projects and agendas.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

type Project struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type Note struct {
	Title           string   `json:"title"`
	Date            string   `json:"date"`
	DurationSeconds int      `json:"duration_seconds"`
	Overview        string   `json:"overview"`
	ActionItems     []string `json:"action_items"`
	KeyPoints       []string `json:"key_points"`
	ProjectID       string   `json:"project_id,omitempty"`
}

// Task is used for tasks and subtasks; subtasks carry ParentTaskID.
type Task struct {
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	DefinitionOfDone string `json:"definitionOfDone,omitempty"`
	Priority         string `json:"priority"`
	DueDate          string `json:"dueDate,omitempty"`
	Status           string `json:"status"`
	ProjectID        string `json:"projectId,omitempty"`
	ParentTaskID     string `json:"parentTaskId,omitempty"`
}

type NewProject struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
}

type Agenda struct {
	Title           string   `json:"title"`
	MeetingDate     string   `json:"meeting_date"`
	MeetingType     string   `json:"meeting_type"`
	DurationMinutes int      `json:"duration_minutes"`
	Location        string   `json:"location,omitempty"`
	Facilitator     string   `json:"facilitator,omitempty"`
	Attendees       []string `json:"attendees,omitempty"`
	RocksToReview   []string `json:"rocks_to_review,omitempty"`
	KnownIssues     []string `json:"known_issues,omitempty"`
	AgendaItems     []string `json:"agenda_items,omitempty"`
	ProjectID       string   `json:"project_id,omitempty"`
}

// Backend is the set of record-keeping operations the tools dispatch to.
// Create operations return the new record's ID.
type Backend interface {
	ListProjects(ctx context.Context) ([]Project, error)
	CreateNote(ctx context.Context, n Note) (string, error)
	CreateTask(ctx context.Context, t Task) (string, error)
	CreateSubtask(ctx context.Context, t Task) (string, error)
	CreateProject(ctx context.Context, p NewProject) (string, error)
	CreateAgenda(ctx context.Context, a Agenda) (string, error)
}

// HTTPBackend implements Backend against the bridge REST API.
type HTTPBackend struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func NewHTTPBackend(baseURL string, timeout time.Duration, httpClient *http.Client) *HTTPBackend {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPBackend{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		timeout:    timeout,
		httpClient: httpClient,
	}
}

func (b *HTTPBackend) ListProjects(ctx context.Context) ([]Project, error) {
	body, err := b.do(ctx, http.MethodGet, "/api/projects", nil)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("list projects: invalid json response")
	}
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, fmt.Errorf("list projects: expected array, got %.80s", res.Raw)
	}

	var projects []Project
	res.ForEach(func(_, p gjson.Result) bool {
		projects = append(projects, Project{
			ID:     p.Get("id").String(),
			Name:   p.Get("name").String(),
			Status: p.Get("status").String(),
		})
		return true
	})
	return projects, nil
}

func (b *HTTPBackend) CreateNote(ctx context.Context, n Note) (string, error) {
	if n.ActionItems == nil {
		n.ActionItems = []string{}
	}
	if n.KeyPoints == nil {
		n.KeyPoints = []string{}
	}
	return b.create(ctx, "/api/notes", "create note", n)
}

func (b *HTTPBackend) CreateTask(ctx context.Context, t Task) (string, error) {
	return b.create(ctx, "/api/tasks", "create task", t)
}

func (b *HTTPBackend) CreateSubtask(ctx context.Context, t Task) (string, error) {
	if strings.TrimSpace(t.ParentTaskID) == "" {
		return "", fmt.Errorf("create subtask: parent task id is required")
	}
	return b.create(ctx, "/api/tasks", "create subtask", t)
}

func (b *HTTPBackend) CreateProject(ctx context.Context, p NewProject) (string, error) {
	return b.create(ctx, "/api/projects", "create project", p)
}

func (b *HTTPBackend) CreateAgenda(ctx context.Context, a Agenda) (string, error) {
	return b.create(ctx, "/api/agendas", "create agenda", a)
}

func (b *HTTPBackend) create(ctx context.Context, path, op string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", op, err)
	}
	body, err := b.do(ctx, http.MethodPost, path, data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", fmt.Errorf("%s: response missing id", op)
	}
	return id, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if msg := gjson.GetBytes(body, "error").String(); msg != "" {
			return nil, fmt.Errorf("backend http %d: %s", resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("backend http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
