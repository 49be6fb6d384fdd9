package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/meetclaw/internal/classify"
	"github.com/stellarlinkco/meetclaw/internal/config"
	"github.com/stellarlinkco/meetclaw/internal/gateway"
	"github.com/stellarlinkco/meetclaw/internal/pipeline"
	"github.com/stellarlinkco/meetclaw/internal/store"
	"github.com/stellarlinkco/meetclaw/internal/transcript"
	"github.com/stellarlinkco/meetclaw/internal/usage"
)

// mockProcessor implements gateway.Processor for testing
type mockProcessor struct {
	fail string
	seen []transcript.Input
}

func (m *mockProcessor) Process(ctx context.Context, in transcript.Input) *pipeline.ProcessingResult {
	m.seen = append(m.seen, in)
	res := &pipeline.ProcessingResult{
		MeetingID:        in.ID,
		Title:            in.DisplayTitle(),
		Tier:             classify.TierSimple,
		Model:            "fast-model",
		ProcessingMethod: pipeline.MethodDirect,
		Iterations:       3,
		Cost:             usage.CostBreakdown{TotalCost: 0.0123},
		FinishedAt:       time.Now(),
	}
	if m.fail != "" {
		res.Error = m.fail
		return res
	}
	res.Success = true
	res.Summary = "Created 1 note and 2 tasks."
	return res
}

func mockFactory(p gateway.Processor) gateway.ProcessorFactory {
	return func(cfg *config.Config) (gateway.Processor, error) {
		return p, nil
	}
}

const transcriptJSON = `{"id":"m-1","title":"Standup","duration":300,
	"sentences":[{"speaker_name":"Ann","text":"Morning."}]}`

// isolate points HOME at a temp dir and clears provider env vars.
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)
	t.Setenv("MEETCLAW_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("FIREFLIES_API_KEY", "")
	return tmpDir
}

func setProcessFlags(t *testing.T, file string, asJSON bool) {
	t.Helper()
	fileFlag, jsonFlag = file, asJSON
	t.Cleanup(func() { fileFlag, jsonFlag = "", false })
}

func writeTranscript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "transcript.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	return path
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := fn()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), err
}

func TestInit(t *testing.T) {
	for _, cmd := range []*cobra.Command{serveCmd, processCmd, onboardCmd, statusCmd, runsCmd} {
		if cmd.Parent() != rootCmd {
			t.Errorf("%s is not registered on the root command", cmd.Use)
		}
	}
	if processCmd.Flags().Lookup("file") == nil {
		t.Error("file flag should exist")
	}
	if processCmd.Flags().Lookup("json") == nil {
		t.Error("json flag should exist")
	}
	if runsCmd.Flags().Lookup("limit") == nil {
		t.Error("limit flag should exist")
	}
}

func TestRunOnboard(t *testing.T) {
	tmpDir := isolate(t)

	output, err := captureStdout(t, func() error { return runOnboard(&cobra.Command{}, nil) })
	if err != nil {
		t.Errorf("runOnboard error: %v", err)
	}

	cfgPath := filepath.Join(tmpDir, ".meetclaw", "config.json")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	var cfg config.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("config is not valid JSON: %v", err)
	}
	if cfg.Agent.MaxIterations != config.DefaultMaxIterations {
		t.Errorf("maxIterations = %d", cfg.Agent.MaxIterations)
	}
	if !strings.Contains(output, "Created config") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestRunOnboard_AlreadyExists(t *testing.T) {
	tmpDir := isolate(t)
	cfgDir := filepath.Join(tmpDir, ".meetclaw")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("{}"), 0644)

	output, err := captureStdout(t, func() error { return runOnboard(&cobra.Command{}, nil) })
	if err != nil {
		t.Errorf("runOnboard error: %v", err)
	}
	if !strings.Contains(output, "Config already exists") {
		t.Errorf("expected 'Config already exists', got: %s", output)
	}
}

func TestRunStatus(t *testing.T) {
	isolate(t)

	output, err := captureStdout(t, func() error { return runStatus(&cobra.Command{}, nil) })
	if err != nil {
		t.Errorf("runStatus error: %v", err)
	}
	for _, want := range []string{"Config:", "API Key: not set", "Telegram: enabled=false", "Pricing: built-in defaults", "Job store: not created yet"} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in output: %s", want, output)
		}
	}
}

func TestRunStatus_WithAPIKey(t *testing.T) {
	isolate(t)
	t.Setenv("MEETCLAW_API_KEY", "sk-ant-1234567890abcd")

	output, _ := captureStdout(t, func() error { return runStatus(&cobra.Command{}, nil) })
	if !strings.Contains(output, "API Key: sk-a...abcd") {
		t.Errorf("expected masked key, got: %s", output)
	}
	if strings.Contains(output, "1234567890") {
		t.Error("key should be masked")
	}
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "not set"},
		{"short", "set"},
		{"abcdefghijkl", "abcd...ijkl"},
	}
	for _, tt := range tests {
		if got := maskKey(tt.key); got != tt.want {
			t.Errorf("maskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestRunServe_NoAPIKey(t *testing.T) {
	isolate(t)

	err := runServe(&cobra.Command{}, nil)
	if err == nil {
		t.Fatal("expected error when API key is not set")
	}
	if !strings.Contains(err.Error(), "API key not set") {
		t.Errorf("error should mention API key: %v", err)
	}
}

func TestRunProcess_RequiresFile(t *testing.T) {
	isolate(t)
	setProcessFlags(t, "", false)

	if err := runProcess(&cobra.Command{}, nil); err == nil {
		t.Error("expected error without -f")
	}
}

func TestRunProcess_NoAPIKey(t *testing.T) {
	tmpDir := isolate(t)
	setProcessFlags(t, writeTranscript(t, tmpDir, transcriptJSON), false)

	err := runProcess(&cobra.Command{}, nil)
	if err == nil || !strings.Contains(err.Error(), "API key not set") {
		t.Errorf("err = %v", err)
	}
}

func TestRunProcessWithOptions_Success(t *testing.T) {
	tmpDir := isolate(t)
	setProcessFlags(t, writeTranscript(t, tmpDir, transcriptJSON), false)
	proc := &mockProcessor{}

	var out bytes.Buffer
	err := runProcessWithOptions(ProcessOptions{ProcessorFactory: mockFactory(proc), Stdout: &out})
	if err != nil {
		t.Fatalf("runProcessWithOptions error: %v", err)
	}
	if len(proc.seen) != 1 || proc.seen[0].ID != "m-1" {
		t.Errorf("processed = %+v", proc.seen)
	}
	for _, want := range []string{"Meeting: Standup (m-1)", "Status: success", "Tier: simple (fast-model)", "Cost: $0.0123", "Created 1 note and 2 tasks."} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("missing %q in output: %s", want, out.String())
		}
	}

	cfg, _ := config.LoadConfig()
	js, err := store.Open(cfg.DBPath())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer js.Close()
	job, err := js.Get(context.Background(), "m-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if job.Status != store.StatusCompleted || job.Source != "cli" {
		t.Errorf("job = %+v", job)
	}
}

func TestRunProcessWithOptions_JSONFromStdin(t *testing.T) {
	isolate(t)
	setProcessFlags(t, "-", true)

	var out bytes.Buffer
	err := runProcessWithOptions(ProcessOptions{
		ProcessorFactory: mockFactory(&mockProcessor{}),
		Stdin:            strings.NewReader(transcriptJSON),
		Stdout:           &out,
	})
	if err != nil {
		t.Fatalf("runProcessWithOptions error: %v", err)
	}
	var res pipeline.ProcessingResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if !res.Success || res.MeetingID != "m-1" {
		t.Errorf("result = %+v", res)
	}
}

func TestRunProcessWithOptions_Failure(t *testing.T) {
	tmpDir := isolate(t)
	setProcessFlags(t, writeTranscript(t, tmpDir, transcriptJSON), false)

	var out bytes.Buffer
	err := runProcessWithOptions(ProcessOptions{
		ProcessorFactory: mockFactory(&mockProcessor{fail: "agent loop failed: boom\nstack"}),
		Stdout:           &out,
	})
	if err == nil {
		t.Fatal("expected error for failed run")
	}
	if err.Error() != "processing failed: agent loop failed: boom" {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(out.String(), "Status: failed") {
		t.Errorf("output: %s", out.String())
	}

	output, err := captureStdout(t, func() error { return runRuns(&cobra.Command{}, nil) })
	if err != nil {
		t.Fatalf("runRuns error: %v", err)
	}
	if !strings.Contains(output, "failed") || !strings.Contains(output, "$0.0123") {
		t.Errorf("runs output: %s", output)
	}
}

func TestRunProcessWithOptions_FactoryError(t *testing.T) {
	tmpDir := isolate(t)
	setProcessFlags(t, writeTranscript(t, tmpDir, transcriptJSON), false)

	err := runProcessWithOptions(ProcessOptions{
		ProcessorFactory: func(cfg *config.Config) (gateway.Processor, error) {
			return nil, errors.New("no provider")
		},
	})
	if err == nil || !strings.Contains(err.Error(), "no provider") {
		t.Errorf("err = %v", err)
	}
}

func TestReadTranscript_Invalid(t *testing.T) {
	tmpDir := t.TempDir()
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{"id":`, "parse transcript"},
		{"missing id", `{"title":"x"}`, "invalid transcript"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.name+".json")
			os.WriteFile(path, []byte(tt.body), 0644)
			_, err := readTranscript(path, nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}

	if _, err := readTranscript(filepath.Join(tmpDir, "missing.json"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRunRuns_Empty(t *testing.T) {
	isolate(t)

	output, err := captureStdout(t, func() error { return runRuns(&cobra.Command{}, nil) })
	if err != nil {
		t.Fatalf("runRuns error: %v", err)
	}
	if !strings.Contains(output, "No runs recorded yet") {
		t.Errorf("output: %s", output)
	}
}

func TestPrintRuns(t *testing.T) {
	jobs := []store.Job{
		{MeetingID: "m-2", Title: "Planning", Status: store.StatusProcessing, Source: "api", UpdatedAt: time.Now()},
		{MeetingID: "m-1", Title: "Standup", Status: store.StatusCompleted, Source: "webhook",
			Result: json.RawMessage(`{"cost":{"total_cost":0.5}}`), UpdatedAt: time.Now()},
	}
	var buf bytes.Buffer
	printRuns(&buf, jobs)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d: %s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "UPDATED") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "processing") || !strings.HasSuffix(strings.TrimSpace(lines[1]), "-") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "$0.5000") {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("this is a long title", 7); got != "this is..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}
