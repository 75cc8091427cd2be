// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package historian

import (
	"context"

	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
	"github.com/d-pohl/Mediator.Net/rpc/params"
)

// workItem is one queued unit of database work. Reads may be moved ahead of
// writes by the prioritiser; execute runs the item against the store and
// resolves its result channel; fail resolves it without touching the store.
type workItem interface {
	isRead() bool
	execute(ctx context.Context, w *Worker)
	fail(err error)
}

type appendItem struct {
	entries []Entry
	done    chan AppendResult
}

func (*appendItem) isRead() bool { return false }

// execute handles a lone append; batches of consecutive appends are merged
// and handled by processAppends instead.
func (i *appendItem) execute(ctx context.Context, w *Worker) {
	w.processAppends(ctx, []*appendItem{i})
}

func (i *appendItem) fail(err error) {
	i.done <- AppendResult{Err: err}
}

type readRawItem struct {
	req  ReadRawRequest
	done chan ReadRawResult
}

func (*readRawItem) isRead() bool { return true }

func (i *readRawItem) execute(ctx context.Context, w *Worker) {
	values, err := w.config.Store.ReadRaw(ctx, i.req)
	i.done <- ReadRawResult{Values: values, Err: err}
}

func (i *readRawItem) fail(err error) {
	i.done <- ReadRawResult{Err: err}
}

type countItem struct {
	variable   object.VariableRef
	start, end vtq.Timestamp
	filter     params.QualityFilter
	done       chan CountResult
}

func (*countItem) isRead() bool { return true }

func (i *countItem) execute(ctx context.Context, w *Worker) {
	n, err := w.config.Store.Count(ctx, i.variable, i.start, i.end, i.filter)
	i.done <- CountResult{Count: n, Err: err}
}

func (i *countItem) fail(err error) {
	i.done <- CountResult{Err: err}
}

type deleteIntervalItem struct {
	variable   object.VariableRef
	start, end vtq.Timestamp
	done       chan DeleteResult
}

func (*deleteIntervalItem) isRead() bool { return false }

func (i *deleteIntervalItem) execute(ctx context.Context, w *Worker) {
	n, err := w.config.Store.DeleteInterval(ctx, i.variable, i.start, i.end)
	i.done <- DeleteResult{Deleted: n, Err: err}
}

func (i *deleteIntervalItem) fail(err error) {
	i.done <- DeleteResult{Err: err}
}

type latestTimeItem struct {
	variable   object.VariableRef
	start, end vtq.Timestamp
	done       chan TimestampResult
}

func (*latestTimeItem) isRead() bool { return true }

func (i *latestTimeItem) execute(ctx context.Context, w *Worker) {
	t, err := w.config.Store.LatestTimestampDB(ctx, i.variable, i.start, i.end)
	i.done <- TimestampResult{T: t, Err: err}
}

func (i *latestTimeItem) fail(err error) {
	i.done <- TimestampResult{Err: err}
}

type modifyItem struct {
	variable object.VariableRef
	mode     params.ModifyMode
	data     []vtq.VTQ
	done     chan error
}

func (*modifyItem) isRead() bool { return false }

func (i *modifyItem) execute(ctx context.Context, w *Worker) {
	i.done <- w.config.Store.Modify(ctx, i.variable, i.mode, i.data, vtq.Now(w.config.Clock))
}

func (i *modifyItem) fail(err error) {
	i.done <- err
}

type deleteChannelsItem struct {
	variables []object.VariableRef
	done      chan DeleteResult
}

func (*deleteChannelsItem) isRead() bool { return false }

func (i *deleteChannelsItem) execute(ctx context.Context, w *Worker) {
	n, err := w.config.Store.DeleteChannels(ctx, i.variables)
	i.done <- DeleteResult{Deleted: n, Err: err}
}

func (i *deleteChannelsItem) fail(err error) {
	i.done <- DeleteResult{Err: err}
}
