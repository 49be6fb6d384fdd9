package cron

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// JobFunc does one scheduled unit of work and returns a short report.
type JobFunc func(ctx context.Context) (string, error)

type JobState struct {
	Name       string    `json:"name"`
	Spec       string    `json:"spec"`
	LastRunAt  time.Time `json:"last_run_at,omitempty"`
	LastStatus string    `json:"last_status,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

type job struct {
	state JobState
	fn    JobFunc
	entry rcron.EntryID
}

// Service runs housekeeping jobs on six-field cron specs (seconds first).
type Service struct {
	mu     sync.Mutex
	cron   *rcron.Cron
	jobs   map[string]*job
	order  []string
	runCtx context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
}

func NewService() *Service {
	return &Service{
		cron:   rcron.New(rcron.WithSeconds()),
		jobs:   make(map[string]*job),
		runCtx: context.Background(),
	}
}

// Add registers fn under name. Names are unique.
func (s *Service) Add(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("cron job %s already registered", name)
	}
	j := &job{state: JobState{Name: name, Spec: spec}, fn: fn}
	id, err := s.cron.AddFunc(spec, func() { s.execute(name) })
	if err != nil {
		return fmt.Errorf("register cron job %s (%s): %w", name, spec, err)
	}
	j.entry = id
	s.jobs[name] = j
	s.order = append(s.order, name)
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	stopCh := make(chan struct{})
	s.mu.Lock()
	s.runCtx = runCtx
	s.cancel = cancel
	s.stopCh = stopCh
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	log.Printf("[cron] started with %d jobs", n)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopCh:
			return
		}
	}()
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	stopCh := s.stopCh
	s.cancel = nil
	s.stopCh = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	close(stopCh)

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[cron] stop timeout waiting for running jobs")
	}
	log.Printf("[cron] stopped")
}

// RunNow executes a job immediately, outside its schedule.
func (s *Service) RunNow(name string) (string, error) {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("cron job %s not found", name)
	}
	return s.execute(name)
}

func (s *Service) execute(name string) (string, error) {
	s.mu.Lock()
	j := s.jobs[name]
	ctx := s.runCtx
	s.mu.Unlock()

	log.Printf("[cron] executing job %s", name)
	result, err := j.fn(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	j.state.LastRunAt = time.Now()
	if err != nil {
		j.state.LastStatus = "error"
		j.state.LastError = err.Error()
		log.Printf("[cron] job %s error: %v", name, err)
	} else {
		j.state.LastStatus = "ok"
		j.state.LastError = ""
		log.Printf("[cron] job %s result: %s", name, truncate(result, 100))
	}
	return result, err
}

// States lists jobs in registration order.
func (s *Service) States() []JobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobState, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.jobs[name].state)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
