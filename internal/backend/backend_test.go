package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestHTTPBackend_ListProjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/projects" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_, _ = io.WriteString(w, `[{"id":"p1","name":"Website","status":"Active"},{"id":"p2","name":"Hiring"}]`)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL+"/", time.Second, srv.Client())
	projects, err := b.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Project{
		{ID: "p1", Name: "Website", Status: "Active"},
		{ID: "p2", Name: "Hiring"},
	}, projects)
}

func TestHTTPBackend_CreateTaskPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tasks" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		req := gjson.ParseBytes(body)
		if req.Get("dueDate").String() != "2025-01-10" {
			t.Errorf("dueDate = %q", req.Get("dueDate").String())
		}
		if req.Get("parentTaskId").String() != "t0" {
			t.Errorf("parentTaskId = %q", req.Get("parentTaskId").String())
		}
		if req.Get("definitionOfDone").String() == "" {
			t.Errorf("definitionOfDone missing")
		}
		_, _ = io.WriteString(w, `{"id":"t1","success":true}`)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second, srv.Client())
	id, err := b.CreateSubtask(context.Background(), Task{
		Name:             "Draft budget",
		DefinitionOfDone: "This task is done when the sheet is shared",
		Priority:         "High",
		DueDate:          "2025-01-10",
		Status:           "To Do",
		ParentTaskID:     "t0",
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", id)
}

func TestHTTPBackend_CreateNoteSendsEmptyLists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if gjson.GetBytes(body, "action_items").Raw != "[]" {
			t.Errorf("action_items = %s", gjson.GetBytes(body, "action_items").Raw)
		}
		_, _ = io.WriteString(w, `{"id":"n1","success":true}`)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second, srv.Client())
	id, err := b.CreateNote(context.Background(), Note{Title: "Weekly"})
	require.NoError(t, err)
	assert.Equal(t, "n1", id)
}

func TestHTTPBackend_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"error field surfaced", http.StatusInternalServerError, `{"error":"notion down"}`, "notion down"},
		{"plain body", http.StatusBadGateway, `upstream gone`, "backend http 502"},
		{"missing id", http.StatusOK, `{"success":true}`, "response missing id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			b := NewHTTPBackend(srv.URL, time.Second, srv.Client())
			_, err := b.CreateProject(context.Background(), NewProject{Name: "X", Status: "Planned"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHTTPBackend_SubtaskRequiresParent(t *testing.T) {
	b := NewHTTPBackend("http://127.0.0.1:1", time.Second, nil)
	_, err := b.CreateSubtask(context.Background(), Task{Name: "x"})
	assert.Error(t, err)
}

func TestHTTPBackend_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, 50*time.Millisecond, srv.Client())
	_, err := b.ListProjects(context.Background())
	assert.Error(t, err)
}
