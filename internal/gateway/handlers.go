package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/stellarlinkco/meetclaw/internal/bus"
	"github.com/stellarlinkco/meetclaw/internal/store"
	"github.com/stellarlinkco/meetclaw/internal/transcript"
)

const (
	maxRequestBytes = 32 << 20
	serviceName     = "meetclaw"
)

// Handler exposes the HTTP API.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", g.handleRoot)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("POST /process-transcript", g.handleProcess)
	mux.HandleFunc("POST /process-transcript-sync", g.handleProcessSync)
	mux.HandleFunc("GET /status/{id}", g.handleStatus)
	mux.HandleFunc("GET /jobs", g.handleJobs)
	mux.HandleFunc("POST /webhook/fireflies", g.handleFirefliesWebhook)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": serviceName})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"queue_depth": g.queue.Len(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func decodeTranscript(r *http.Request) (transcript.Input, error) {
	var in transcript.Input
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return in, err
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return in, err
	}
	return in, in.Validate()
}

func (g *Gateway) handleProcess(w http.ResponseWriter, r *http.Request) {
	in, err := decodeTranscript(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid transcript: "+err.Error())
		return
	}

	switch err := g.submit(r.Context(), in, bus.SourceAPI); {
	case errors.Is(err, store.ErrAlreadyProcessing):
		writeDetail(w, http.StatusConflict, "Meeting is already being processed")
		return
	case errors.Is(err, bus.ErrQueueFull), errors.Is(err, bus.ErrQueueClosed):
		writeDetail(w, http.StatusServiceUnavailable, "Processing queue is unavailable, retry later")
		return
	case err != nil:
		log.Printf("[gateway] submit %s: %v", in.ID, err)
		writeDetail(w, http.StatusInternalServerError, "Failed to queue meeting")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"meeting_id": in.ID,
		"title":      in.DisplayTitle(),
		"success":    true,
		"summary":    "Processing started in background",
	})
}

func (g *Gateway) handleProcessSync(w http.ResponseWriter, r *http.Request) {
	in, err := decodeTranscript(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid transcript: "+err.Error())
		return
	}

	if err := g.store.Begin(r.Context(), in.ID, in.DisplayTitle(), bus.SourceAPI); err != nil {
		if errors.Is(err, store.ErrAlreadyProcessing) {
			writeDetail(w, http.StatusConflict, "Meeting is already being processed")
			return
		}
		log.Printf("[gateway] begin %s: %v", in.ID, err)
		writeDetail(w, http.StatusInternalServerError, "Failed to record meeting")
		return
	}

	res := g.runJob(r.Context(), bus.Job{Input: in, ReceivedAt: time.Now(), Source: bus.SourceAPI})
	writeJSON(w, http.StatusOK, res)
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := g.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Meeting not found")
		return
	}
	if err != nil {
		log.Printf("[gateway] status %s: %v", r.PathValue("id"), err)
		writeDetail(w, http.StatusInternalServerError, "Failed to load status")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (g *Gateway) handleJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := g.store.List(r.Context(), limit)
	if err != nil {
		log.Printf("[gateway] list jobs: %v", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []store.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}
