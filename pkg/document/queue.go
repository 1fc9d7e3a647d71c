package document

import (
	"context"
	"sync"

	"github.com/chazu/kerf/pkg/caderr"
)

// job is a submitted command and where its result goes.
type job struct {
	ctx   context.Context
	cmd   Command
	reply chan error
}

// Queue applies commands to a document in submission order on a single
// worker goroutine. Submit never blocks on the document; the returned
// channel receives the command's error once it has been applied.
//
// The queue is unbounded so a burst of edits never stalls the caller.
type Queue struct {
	doc *Document

	mu     sync.Mutex
	jobs   []job
	closed bool
	signal chan struct{} // buffered, size 1
}

// NewQueue creates a queue feeding doc. Call Run to start applying.
func NewQueue(doc *Document) *Queue {
	return &Queue{
		doc:    doc,
		jobs:   make([]job, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Submit enqueues cmd. The channel receives exactly one value: the
// command's error, or a Cancelled error if the queue stopped first.
func (q *Queue) Submit(ctx context.Context, cmd Command) <-chan error {
	reply := make(chan error, 1)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		reply <- caderr.New(caderr.Cancelled, "Submit", "queue closed")
		return reply
	}
	q.jobs = append(q.jobs, job{ctx: ctx, cmd: cmd, reply: reply})

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return reply
}

// Do submits cmd and waits for it to be applied.
func (q *Queue) Do(ctx context.Context, cmd Command) error {
	select {
	case err := <-q.Submit(ctx, cmd):
		return err
	case <-ctx.Done():
		return caderr.Wrap(caderr.Cancelled, "Do", ctx.Err())
	}
}

// Run applies queued commands until ctx is done or the queue is closed
// and drained. Commands still queued when ctx ends are answered with a
// Cancelled error.
func (q *Queue) Run(ctx context.Context) error {
	for {
		if j, ok := q.tryDequeue(); ok {
			if err := j.ctx.Err(); err != nil {
				j.reply <- caderr.Wrap(caderr.Cancelled, j.cmd.Name(), err)
				continue
			}
			j.reply <- q.doc.Do(j.ctx, j.cmd)
			continue
		}

		q.mu.Lock()
		done := q.closed && len(q.jobs) == 0
		q.mu.Unlock()
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			q.drain(ctx.Err())
			return ctx.Err()
		case <-q.signal:
		}
	}
}

func (q *Queue) tryDequeue() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return job{}, false
	}
	j := q.jobs[0]
	q.jobs[0] = job{}
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return j, true
}

// drain closes the queue and answers everything left with cause.
func (q *Queue) drain(cause error) {
	q.mu.Lock()
	jobs := q.jobs
	q.jobs = nil
	if !q.closed {
		q.closed = true
		close(q.signal)
	}
	q.mu.Unlock()

	for _, j := range jobs {
		j.reply <- caderr.Wrap(caderr.Cancelled, j.cmd.Name(), cause)
	}
}

// Len returns the number of commands waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close stops accepting commands. Run finishes the ones already queued
// and returns.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
