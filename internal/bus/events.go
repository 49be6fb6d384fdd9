package bus

import (
	"context"
	"errors"
	"time"

	"github.com/stellarlinkco/meetclaw/internal/transcript"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
)

// Sources a job can arrive from.
const (
	SourceAPI     = "api"
	SourceWebhook = "webhook"
	SourceCLI     = "cli"
)

// Job is one transcript waiting for a worker.
type Job struct {
	Input      transcript.Input
	ReceivedAt time.Time
	Source     string
}

// Notification reports a finished run to the notify channels.
type Notification struct {
	MeetingID        string
	Title            string
	Success          bool
	Error            string
	Summary          string
	Tier             string
	ProcessingMethod string
	TotalCost        float64
	ToolCalls        int
	Duration         time.Duration
}

// JobQueue is a bounded FIFO between the HTTP front end and the workers.
type JobQueue struct {
	ch     chan Job
	closed chan struct{}
}

func NewJobQueue(size int) *JobQueue {
	if size <= 0 {
		size = 1
	}
	return &JobQueue{ch: make(chan Job, size), closed: make(chan struct{})}
}

// Enqueue never blocks: a saturated queue returns ErrQueueFull.
func (q *JobQueue) Enqueue(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Jobs is the consumer side. It is never closed; workers stop on Done.
func (q *JobQueue) Jobs() <-chan Job {
	return q.ch
}

// Done is closed once Close is called.
func (q *JobQueue) Done() <-chan struct{} {
	return q.closed
}

// Close rejects further jobs. Safe to call more than once.
func (q *JobQueue) Close() {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
}

func (q *JobQueue) Len() int {
	return len(q.ch)
}
