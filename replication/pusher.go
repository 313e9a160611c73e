package replication

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tomyedwab/libsqlgo/dberror"
	"github.com/tomyedwab/libsqlgo/metrics"
	"github.com/tomyedwab/libsqlgo/types"
)

// ErrPusherStopped is returned by operations on a stopped Pusher.
var ErrPusherStopped = errors.New("pusher is stopped")

// Batch is a run of journal entries ending at journal sequence Seq.
type Batch struct {
	ReplicaID string
	Entries   []types.Entry
	Seq       int64
}

type pushRequest struct {
	batch   *Batch
	flushed chan struct{}
}

// Pusher ships batches to the primary from a single background goroutine,
// in the order they were enqueued. After a failed push, later batches are
// dropped until the failure is collected with TakeError; the journal still
// holds their entries, so the owner re-enqueues them.
type Pusher struct {
	client      *Client
	logger      *slog.Logger
	pushTimeout time.Duration

	queue     chan pushRequest
	stopMu    sync.RWMutex
	stopped   bool
	loopDone  chan struct{}
	mu        sync.Mutex // Protects acked and err
	acked     int64
	err       error
	queueSize int
}

// PusherOption represents a functional option for configuring the Pusher
type PusherOption func(*Pusher)

// WithPushTimeout bounds each push request
func WithPushTimeout(timeout time.Duration) PusherOption {
	return func(p *Pusher) {
		p.pushTimeout = timeout
	}
}

// WithQueueSize sets the number of batches that may wait for the worker
func WithQueueSize(size int) PusherOption {
	return func(p *Pusher) {
		p.queueSize = size
	}
}

// NewPusher starts a pusher. acked is the journal sequence the primary is
// already known to hold.
func NewPusher(client *Client, logger *slog.Logger, acked int64, options ...PusherOption) *Pusher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pusher{
		client:      client,
		logger:      logger,
		pushTimeout: 30 * time.Second,
		acked:       acked,
		loopDone:    make(chan struct{}),
		queueSize:   64,
	}
	for _, option := range options {
		option(p)
	}
	p.queue = make(chan pushRequest, p.queueSize)
	go p.loop()
	return p
}

// Enqueue hands a batch to the worker. It blocks only while the queue is
// full.
func (p *Pusher) Enqueue(ctx context.Context, batch Batch) error {
	return p.send(ctx, pushRequest{batch: &batch})
}

// Flush blocks until every batch enqueued before the call was processed.
// It does not report push failures; see TakeError.
func (p *Pusher) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	if err := p.send(ctx, pushRequest{flushed: flushed}); err != nil {
		return err
	}
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pusher) send(ctx context.Context, req pushRequest) error {
	p.stopMu.RLock()
	defer p.stopMu.RUnlock()
	if p.stopped {
		return ErrPusherStopped
	}
	select {
	case p.queue <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acked returns the highest journal sequence acknowledged by the primary.
func (p *Pusher) Acked() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acked
}

// TakeError returns the first push failure since the last call, clearing it
// so that pushing resumes.
func (p *Pusher) TakeError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.err
	p.err = nil
	return err
}

// Stop processes what is already queued, then stops the worker. It is safe
// to call more than once.
func (p *Pusher) Stop() {
	p.stopMu.Lock()
	if p.stopped {
		p.stopMu.Unlock()
		<-p.loopDone
		return
	}
	p.stopped = true
	close(p.queue)
	p.stopMu.Unlock()
	<-p.loopDone
}

func (p *Pusher) loop() {
	defer close(p.loopDone)
	for req := range p.queue {
		if req.batch != nil {
			p.push(req.batch)
		}
		if req.flushed != nil {
			close(req.flushed)
		}
	}
}

func (p *Pusher) push(batch *Batch) {
	p.mu.Lock()
	failed := p.err != nil
	skip := batch.Seq <= p.acked
	p.mu.Unlock()
	if failed || skip {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.pushTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.Push(ctx, batch.ReplicaID, batch.Entries)
	if err != nil {
		metrics.ReplicationPushTotal.WithLabelValues(metrics.Fail).Inc()
		p.logger.Warn("Replication push failed",
			"entries", len(batch.Entries), "seq", batch.Seq, "error", err)
		p.mu.Lock()
		if dberror.KindOf(err) == dberror.KindUnknown {
			err = dberror.Operational(err, "replication push failed")
		}
		p.err = err
		p.mu.Unlock()
		return
	}

	metrics.ReplicationPushTotal.WithLabelValues(metrics.Ok).Inc()
	metrics.ReplicationPushEntries.Add(float64(resp.Applied))
	p.logger.Debug("Replication push complete",
		"entries", len(batch.Entries), "applied", resp.Applied, "seq", batch.Seq,
		"elapsed", time.Since(start))

	p.mu.Lock()
	if batch.Seq > p.acked {
		p.acked = batch.Seq
	}
	p.mu.Unlock()
}
