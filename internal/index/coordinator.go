package index

import (
	"context"
	"errors"
	"sync"

	"lattice/api/internal/logger"
	"lattice/api/internal/metrics"
	"lattice/api/internal/model"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
	StatusComplete Status = "complete"
)

var ErrCoordinatorClosed = errors.New("index coordinator closed")

// Runner indexes one document.
type Runner interface {
	IndexDocument(ctx context.Context, docID model.DocumentID) error
}

// Coordinator is a dedup queue in front of a fixed worker pool. A document
// sits in the queue at most once, and at most one parse per document runs
// at a time.
type Coordinator struct {
	runner  Runner
	workers int
	log     *logger.Logger

	mu      sync.Mutex
	queued  map[model.DocumentID]struct{}
	status  map[model.DocumentID]Status
	running map[model.DocumentID]*sync.Mutex
	closed  bool

	// sendMu keeps Close from closing jobs under an in-flight send.
	sendMu sync.RWMutex
	jobs   chan model.DocumentID
	wg     sync.WaitGroup
}

func NewCoordinator(runner Runner, workers, buffer int, log *logger.Logger) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 64
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Coordinator{
		runner:  runner,
		workers: workers,
		log:     log,
		queued:  make(map[model.DocumentID]struct{}),
		status:  make(map[model.DocumentID]Status),
		running: make(map[model.DocumentID]*sync.Mutex),
		jobs:    make(chan model.DocumentID, buffer),
	}
}

// Start launches the workers. They exit when ctx is cancelled or Close is
// called.
func (c *Coordinator) Start(ctx context.Context) {
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case docID, ok := <-c.jobs:
					if !ok {
						return
					}
					metrics.IndexQueueDepth.Dec()
					if err := c.Run(ctx, docID); err != nil {
						c.log.ParseFailed(docID.String(), err)
					}
				}
			}
		}()
	}
}

// Close stops accepting work and waits for the workers to drain the queue.
func (c *Coordinator) Close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.jobs)
	c.mu.Unlock()
	c.wg.Wait()
}

// Enqueue schedules a parse. It is a no-op when the document is already
// queued. It blocks while the queue is full.
func (c *Coordinator) Enqueue(ctx context.Context, docID model.DocumentID) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	if _, ok := c.queued[docID]; ok {
		c.mu.Unlock()
		return nil
	}
	c.queued[docID] = struct{}{}
	c.status[docID] = StatusPending
	c.mu.Unlock()

	select {
	case c.jobs <- docID:
		metrics.IndexQueueDepth.Inc()
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.queued, docID)
		c.mu.Unlock()
		return ctx.Err()
	}
}

func (c *Coordinator) EnqueueMany(ctx context.Context, docIDs []model.DocumentID) error {
	for _, id := range docIDs {
		if err := c.Enqueue(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Status reports the last known state of a document.
func (c *Coordinator) Status(docID model.DocumentID) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.status[docID]
	return s, ok
}

// Run indexes a document synchronously, bypassing the queue.
func (c *Coordinator) Run(ctx context.Context, docID model.DocumentID) error {
	lock := c.documentLock(docID)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	delete(c.queued, docID)
	c.status[docID] = StatusRunning
	c.mu.Unlock()

	err := c.runner.IndexDocument(ctx, docID)

	c.mu.Lock()
	if err != nil {
		c.status[docID] = StatusFailed
	} else {
		c.status[docID] = StatusComplete
	}
	c.mu.Unlock()

	if err != nil {
		metrics.IndexJobs.WithLabelValues(string(StatusFailed)).Inc()
		return err
	}
	metrics.IndexJobs.WithLabelValues(string(StatusComplete)).Inc()
	return nil
}

func (c *Coordinator) documentLock(docID model.DocumentID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.running[docID]
	if !ok {
		lock = &sync.Mutex{}
		c.running[docID] = lock
	}
	return lock
}
