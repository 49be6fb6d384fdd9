package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stellarlinkco/meetclaw/internal/bus"
	"github.com/stellarlinkco/meetclaw/internal/config"
	"github.com/stellarlinkco/meetclaw/internal/cron"
	"github.com/stellarlinkco/meetclaw/internal/fireflies"
	"github.com/stellarlinkco/meetclaw/internal/notify"
	"github.com/stellarlinkco/meetclaw/internal/pipeline"
	"github.com/stellarlinkco/meetclaw/internal/store"
	"github.com/stellarlinkco/meetclaw/internal/transcript"
)

// Processor runs one transcript (allows mocking in tests)
type Processor interface {
	Process(ctx context.Context, in transcript.Input) *pipeline.ProcessingResult
}

// TranscriptFetcher loads a transcript by meeting ID for the webhook.
type TranscriptFetcher interface {
	Transcript(ctx context.Context, id string) (*transcript.Input, error)
}

// ProcessorFactory creates a Processor instance
type ProcessorFactory func(cfg *config.Config) (Processor, error)

// Options for creating a Gateway
type Options struct {
	ProcessorFactory ProcessorFactory
	Fetcher          TranscriptFetcher
	Notifier         notify.Notifier
	SignalChan       chan os.Signal // for testing signal handling
}

// DefaultProcessorFactory wires the production pipeline.
func DefaultProcessorFactory(cfg *config.Config) (Processor, error) {
	return pipeline.NewFromConfig(cfg)
}

type Gateway struct {
	cfg        *config.Config
	store      *store.JobStore
	queue      *bus.JobQueue
	processor  Processor
	fetcher    TranscriptFetcher
	notifier   notify.Notifier
	cron       *cron.Service
	server     *http.Server
	workers    *errgroup.Group
	signalChan chan os.Signal // for testing

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{
		cfg:        cfg,
		queue:      bus.NewJobQueue(cfg.Gateway.QueueSize),
		signalChan: opts.SignalChan,
	}

	factory := opts.ProcessorFactory
	if factory == nil {
		factory = DefaultProcessorFactory
	}
	proc, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create processor: %w", err)
	}
	g.processor = proc

	g.fetcher = opts.Fetcher
	if g.fetcher == nil && cfg.Fireflies.APIKey != "" {
		g.fetcher = fireflies.NewClient(cfg.Fireflies.APIKey, cfg.Fireflies.Endpoint, nil)
	}

	g.notifier = opts.Notifier
	if g.notifier == nil {
		g.notifier, err = defaultNotifier(cfg)
		if err != nil {
			return nil, err
		}
	}

	js, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	g.store = js
	if n, err := js.ResetInterrupted(context.Background()); err != nil {
		_ = js.Close()
		return nil, err
	} else if n > 0 {
		log.Printf("[gateway] marked %d interrupted jobs as failed", n)
	}

	g.cron = cron.NewService()
	if err := g.cron.Add(cron.RetentionJobName, cron.RetentionSpec,
		cron.RetentionJob(g.store, cfg.Gateway.RetentionDays, nil)); err != nil {
		_ = g.store.Close()
		return nil, err
	}

	g.server = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

func defaultNotifier(cfg *config.Config) (notify.Notifier, error) {
	if !cfg.Notify.Telegram.Enabled {
		return notify.Nop{}, nil
	}
	tg, err := notify.NewTelegramNotifier(cfg.Notify.Telegram)
	if err != nil {
		return nil, fmt.Errorf("create telegram notifier: %w", err)
	}
	return notify.Multi{tg}, nil
}

func (g *Gateway) addr() string {
	return fmt.Sprintf("%s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)
}

// Addr is the bound listen address once Run has started.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := net.Listen("tcp", g.addr())
	if err != nil {
		_ = g.Shutdown()
		return fmt.Errorf("listen on %s: %w", g.addr(), err)
	}
	g.mu.Lock()
	g.listener = ln
	g.mu.Unlock()

	if err := g.cron.Start(ctx); err != nil {
		log.Printf("[gateway] cron start warning: %v", err)
	}
	g.startWorkers(ctx)

	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[gateway] server error: %v", err)
		}
	}()
	log.Printf("[gateway] running on %s with %d workers", ln.Addr(), g.workerCount())

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) workerCount() int {
	if n := g.cfg.Gateway.Workers; n > 0 {
		return n
	}
	return config.DefaultWorkers
}

func (g *Gateway) startWorkers(ctx context.Context) {
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < g.workerCount(); i++ {
		id := i + 1
		eg.Go(func() error {
			g.workerLoop(ctx, id)
			return nil
		})
	}
	g.workers = eg
}

func (g *Gateway) workerLoop(ctx context.Context, id int) {
	defer log.Printf("[gateway] worker %d stopped", id)
	for {
		select {
		case job := <-g.queue.Jobs():
			g.runJob(ctx, job)
		case <-g.queue.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// runJob processes one job and records its outcome. The outcome is persisted
// even when ctx has been cancelled.
func (g *Gateway) runJob(ctx context.Context, job bus.Job) *pipeline.ProcessingResult {
	in := job.Input
	log.Printf("[gateway] processing %s %q from %s", in.ID, truncate(in.DisplayTitle(), 60), job.Source)

	res := g.processor.Process(ctx, in)
	g.finish(context.WithoutCancel(ctx), job, res)
	return res
}

func (g *Gateway) finish(ctx context.Context, job bus.Job, res *pipeline.ProcessingResult) {
	data, err := json.Marshal(res)
	if err != nil {
		log.Printf("[gateway] encode result for %s: %v", res.MeetingID, err)
		data = nil
	}

	if res.Success {
		err = g.store.Complete(ctx, res.MeetingID, data)
	} else {
		err = g.store.Fail(ctx, res.MeetingID, res.Error, data)
	}
	if err != nil {
		log.Printf("[gateway] persist result for %s: %v", res.MeetingID, err)
	}
	log.Printf("[gateway] finished %s success=%v cost=$%.4f", res.MeetingID, res.Success, res.Cost.TotalCost)

	n := bus.Notification{
		MeetingID:        res.MeetingID,
		Title:            res.Title,
		Success:          res.Success,
		Error:            res.Error,
		Summary:          res.Summary,
		Tier:             string(res.Tier),
		ProcessingMethod: res.ProcessingMethod,
		TotalCost:        res.Cost.TotalCost,
		ToolCalls:        len(res.ToolCalls),
		Duration:         res.FinishedAt.Sub(job.ReceivedAt),
	}
	if err := g.notifier.Notify(ctx, n); err != nil {
		log.Printf("[gateway] notify for %s: %v", res.MeetingID, err)
	}
}

// submit registers a job and queues it for the workers.
func (g *Gateway) submit(ctx context.Context, in transcript.Input, source string) error {
	if err := g.store.Begin(ctx, in.ID, in.DisplayTitle(), source); err != nil {
		return err
	}
	err := g.queue.Enqueue(ctx, bus.Job{Input: in, ReceivedAt: time.Now(), Source: source})
	if err != nil {
		if ferr := g.store.Fail(context.WithoutCancel(ctx), in.ID, fmt.Sprintf("not queued: %v", err), nil); ferr != nil {
			log.Printf("[gateway] mark %s failed: %v", in.ID, ferr)
		}
		return err
	}
	return nil
}

func (g *Gateway) Shutdown() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.server.Shutdown(ctx); err != nil {
		log.Printf("[gateway] http shutdown warning: %v", err)
	}

	g.queue.Close()
	if g.workers != nil {
		_ = g.workers.Wait()
	}
	g.drainQueue()

	g.cron.Stop()
	if err := g.store.Close(); err != nil {
		log.Printf("[gateway] close job store warning: %v", err)
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}

// drainQueue marks jobs that never reached a worker as failed.
func (g *Gateway) drainQueue() {
	for {
		select {
		case job := <-g.queue.Jobs():
			if err := g.store.Fail(context.Background(), job.Input.ID, "gateway shut down before processing", nil); err != nil {
				log.Printf("[gateway] mark %s failed: %v", job.Input.ID, err)
			}
		default:
			return
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
