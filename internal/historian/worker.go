// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package historian

import (
	"context"
	"sync"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/worker/v4/catacomb"

	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
	"github.com/d-pohl/Mediator.Net/rpc/params"
)

var logger = loggo.GetLogger("mediator.historian")

// ErrTerminated is the failure reported for work submitted to, or still
// queued in, a worker that has shut down.
var ErrTerminated = errors.New("historian worker terminated")

// WorkerConfig holds what a historian worker needs to run.
type WorkerConfig struct {
	// Name identifies the database in logs and events.
	Name string

	// Store is the database owned by this worker.
	Store Store

	// PrioritizeReads lets a queued read overtake queued writes, bounding
	// read latency under write-heavy load. Writes are never reordered
	// among themselves.
	PrioritizeReads bool

	// Clock supplies the database insertion timestamps.
	Clock clock.Clock
}

// Validate returns an error if the config cannot drive a worker.
func (config WorkerConfig) Validate() error {
	if config.Name == "" {
		return errors.NotValidf("empty Name")
	}
	if config.Store == nil {
		return errors.NotValidf("nil Store")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Worker serialises access to one history database. Work is submitted
// through the typed methods, each returning a channel that yields the
// result exactly once. Submission never blocks.
type Worker struct {
	catacomb catacomb.Catacomb
	config   WorkerConfig

	mu         sync.Mutex
	queue      []workItem
	wake       chan struct{}
	terminated bool
}

// NewWorker starts the worker. The store is opened on the worker's own
// goroutine; a store that cannot open kills the worker.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &Worker{
		config: config,
		wake:   make(chan struct{}, 1),
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.catacomb.Wait()
}

// AppendResult reports the outcome of one append batch. ItemErrors has one
// entry per submitted value, empty for success; it is nil when Err is set.
type AppendResult struct {
	ItemErrors []string
	Err        error
}

// ReadRawResult carries a ReadRaw outcome.
type ReadRawResult struct {
	Values []vtq.VTTQ
	Err    error
}

// CountResult carries a Count outcome.
type CountResult struct {
	Count int64
	Err   error
}

// DeleteResult carries the number of deleted rows or channels.
type DeleteResult struct {
	Deleted int64
	Err     error
}

// TimestampResult carries a single timestamp, Empty for none.
type TimestampResult struct {
	T   vtq.Timestamp
	Err error
}

// Append queues a batch of values for insertion.
func (w *Worker) Append(entries []Entry) <-chan AppendResult {
	item := &appendItem{entries: entries, done: make(chan AppendResult, 1)}
	if !w.post(item) {
		item.done <- AppendResult{Err: ErrTerminated}
	}
	return item.done
}

// ReadRaw queues an interval read.
func (w *Worker) ReadRaw(req ReadRawRequest) <-chan ReadRawResult {
	item := &readRawItem{req: req, done: make(chan ReadRawResult, 1)}
	if !w.post(item) {
		item.done <- ReadRawResult{Err: ErrTerminated}
	}
	return item.done
}

// Count queues an interval count.
func (w *Worker) Count(v object.VariableRef, start, end vtq.Timestamp, filter params.QualityFilter) <-chan CountResult {
	item := &countItem{variable: v, start: start, end: end, filter: filter, done: make(chan CountResult, 1)}
	if !w.post(item) {
		item.done <- CountResult{Err: ErrTerminated}
	}
	return item.done
}

// DeleteInterval queues an interval delete.
func (w *Worker) DeleteInterval(v object.VariableRef, start, end vtq.Timestamp) <-chan DeleteResult {
	item := &deleteIntervalItem{variable: v, start: start, end: end, done: make(chan DeleteResult, 1)}
	if !w.post(item) {
		item.done <- DeleteResult{Err: ErrTerminated}
	}
	return item.done
}

// LatestTimestampDB queues a latest-insertion-timestamp query.
func (w *Worker) LatestTimestampDB(v object.VariableRef, start, end vtq.Timestamp) <-chan TimestampResult {
	item := &latestTimeItem{variable: v, start: start, end: end, done: make(chan TimestampResult, 1)}
	if !w.post(item) {
		item.done <- TimestampResult{Err: ErrTerminated}
	}
	return item.done
}

// Modify queues an edit of one variable's stored values.
func (w *Worker) Modify(v object.VariableRef, mode params.ModifyMode, data []vtq.VTQ) <-chan error {
	item := &modifyItem{variable: v, mode: mode, data: data, done: make(chan error, 1)}
	if !w.post(item) {
		item.done <- ErrTerminated
	}
	return item.done
}

// DeleteChannels queues dropping whole channels.
func (w *Worker) DeleteChannels(vars []object.VariableRef) <-chan DeleteResult {
	item := &deleteChannelsItem{variables: vars, done: make(chan DeleteResult, 1)}
	if !w.post(item) {
		item.done <- DeleteResult{Err: ErrTerminated}
	}
	return item.done
}

func (w *Worker) post(item workItem) bool {
	w.mu.Lock()
	if w.terminated {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, item)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// drain moves the inbound queue into the caller.
func (w *Worker) drain() []workItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	items := w.queue
	w.queue = nil
	return items
}

func (w *Worker) loop() error {
	defer w.terminate()
	ctx := w.catacomb.Context(context.Background())
	if err := w.config.Store.Open(ctx); err != nil {
		return errors.Annotatef(err, "opening history database %q", w.config.Name)
	}
	defer func() {
		if err := w.config.Store.Close(); err != nil {
			logger.Errorf("closing history database %q: %v", w.config.Name, err)
		}
	}()
	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case <-w.wake:
		}
		local := w.drain()
		for len(local) > 0 {
			select {
			case <-w.catacomb.Dying():
				w.failAll(local)
				return w.catacomb.ErrDying()
			default:
			}
			local = w.prioritize(local)
			local = w.processHead(ctx, local)
			// Work posted while busy joins behind what is already
			// queued locally, so write order is preserved.
			local = append(local, w.drain()...)
		}
	}
}

// terminate fails everything still queued and every later submission.
func (w *Worker) terminate() {
	w.mu.Lock()
	w.terminated = true
	pending := w.queue
	w.queue = nil
	w.mu.Unlock()
	w.failAll(pending)
}

func (w *Worker) failAll(items []workItem) {
	for _, item := range items {
		item.fail(ErrTerminated)
	}
}

// prioritize moves the first queued read to the head when the head is not a
// read. The relative order of writes, and of reads among themselves, is
// kept.
func (w *Worker) prioritize(queue []workItem) []workItem {
	if !w.config.PrioritizeReads || len(queue) < 2 || queue[0].isRead() {
		return queue
	}
	for i := 1; i < len(queue); i++ {
		if !queue[i].isRead() {
			continue
		}
		head := queue[i]
		copy(queue[1:i+1], queue[:i])
		queue[0] = head
		break
	}
	return queue
}

// processHead executes the head of the queue and returns the remainder.
// A head-of-queue append absorbs the longest prefix of consecutive appends
// into a single store transaction.
func (w *Worker) processHead(ctx context.Context, queue []workItem) []workItem {
	if first, ok := queue[0].(*appendItem); ok {
		batch := []*appendItem{first}
		for _, item := range queue[1:] {
			next, ok := item.(*appendItem)
			if !ok {
				break
			}
			batch = append(batch, next)
		}
		w.processAppends(ctx, batch)
		return queue[len(batch):]
	}
	queue[0].execute(ctx, w)
	return queue[1:]
}

func (w *Worker) processAppends(ctx context.Context, batch []*appendItem) {
	var all []Entry
	for _, item := range batch {
		all = append(all, item.entries...)
	}
	itemErrors, err := w.config.Store.Append(ctx, all, vtq.Now(w.config.Clock))
	if err != nil {
		logger.Errorf("history database %q: append of %d values failed: %v",
			w.config.Name, len(all), err)
		for _, item := range batch {
			item.done <- AppendResult{Err: err}
		}
		return
	}
	// Slice the per-value errors back apart along the batch boundaries.
	offset := 0
	for _, item := range batch {
		n := len(item.entries)
		var part []string
		if offset+n <= len(itemErrors) {
			part = itemErrors[offset : offset+n]
		}
		offset += n
		item.done <- AppendResult{ItemErrors: part}
	}
}
