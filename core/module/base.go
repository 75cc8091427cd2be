// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package module

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
)

// Base is an embeddable module runtime. Its Run method pumps an inbox on the
// goroutine the supervisor dedicates to the module, invoking a periodic
// cycle hook between posted operations. Modules built on Base route their
// service methods through Post/RunSync, which makes every piece of module
// code execute on that one goroutine.
//
// Base also supplies conservative defaults for the service methods, so a
// module only implements what it supports. Init has no default; every module
// defines its own and calls Setup there.
type Base struct {
	setupOnce sync.Once
	stopOnce  sync.Once

	clk     clock.Clock
	cycle   time.Duration
	onCycle func(now vtq.Timestamp)

	inbox   chan func()
	stopped chan struct{}
}

// Setup configures the pump. Call it from Init, before the supervisor starts
// Run. A nil clock means the wall clock; a zero cycle means one second; a
// nil onCycle means no periodic work.
func (b *Base) Setup(clk clock.Clock, cycle time.Duration, onCycle func(now vtq.Timestamp)) {
	b.clk = clk
	b.cycle = cycle
	b.onCycle = onCycle
	b.ensure()
}

func (b *Base) ensure() {
	b.setupOnce.Do(func() {
		if b.clk == nil {
			b.clk = clock.WallClock
		}
		if b.cycle <= 0 {
			b.cycle = time.Second
		}
		b.inbox = make(chan func(), 256)
		b.stopped = make(chan struct{})
	})
}

func (b *Base) stop() {
	b.ensure()
	b.stopOnce.Do(func() {
		close(b.stopped)
	})
}

// Run pumps posted operations and the cycle hook until isShutdown reports
// true. The shutdown flag is polled once per cycle.
func (b *Base) Run(isShutdown func() bool) {
	b.ensure()
	defer b.stop()
	timer := b.clk.NewTimer(b.cycle)
	defer timer.Stop()
	for {
		select {
		case f := <-b.inbox:
			f()
		case <-b.stopped:
			return
		case <-timer.Chan():
			if isShutdown() {
				return
			}
			if b.onCycle != nil {
				b.onCycle(vtq.Now(b.clk))
			}
			timer.Reset(b.cycle)
		}
	}
}

// Post enqueues f for execution on the pump goroutine and returns without
// waiting for it to run.
func (b *Base) Post(f func()) error {
	b.ensure()
	select {
	case b.inbox <- f:
		return nil
	case <-b.stopped:
		return errors.New("module stopped")
	}
}

// RunSync executes f on the pump goroutine and waits for its result. The
// context bounds both the enqueue and the wait; expiry surfaces as a Timeout
// error while f may still run later.
func (b *Base) RunSync(ctx context.Context, f func() error) error {
	b.ensure()
	done := make(chan error, 1)
	select {
	case b.inbox <- func() { done <- f() }:
	case <-b.stopped:
		return errors.New("module stopped")
	case <-ctx.Done():
		return errors.Timeoutf("posting to module")
	}
	select {
	case err := <-done:
		return errors.Trace(err)
	case <-b.stopped:
		return errors.New("module stopped")
	case <-ctx.Done():
		return errors.Timeoutf("waiting for module")
	}
}

// InitAbort stops the pump so pending and future posts fail fast.
func (b *Base) InitAbort() error {
	b.stop()
	return nil
}

// AllObjects implements Module; modules hosting objects shadow it.
func (b *Base) AllObjects() []object.ObjectInfo {
	return nil
}

// MetaInfo implements Module; modules hosting objects shadow it.
func (b *Base) MetaInfo() object.MetaInfo {
	return object.MetaInfo{}
}

// ReadVariables implements Module for modules without readable sources.
func (b *Base) ReadVariables(ctx context.Context, origin object.Origin, refs []object.VariableRef) ([]vtq.VTQ, error) {
	return nil, errors.NotImplementedf("ReadVariables")
}

// WriteVariables implements Module for modules without writable sinks.
func (b *Base) WriteVariables(ctx context.Context, origin object.Origin, values []object.VariableValue) ([]WriteResult, error) {
	return nil, errors.NotImplementedf("WriteVariables")
}

// UpdateConfig implements Module for modules without editable configuration.
func (b *Base) UpdateConfig(ctx context.Context, origin object.Origin, req UpdateConfigRequest) (ConfigResult, error) {
	return ConfigResult{}, errors.NotImplementedf("UpdateConfig")
}

// MemberValues implements Module for modules without configuration members.
func (b *Base) MemberValues(ctx context.Context, members []object.MemberRef) ([]object.MemberValue, error) {
	return nil, errors.NotImplementedf("MemberValues")
}

// CallMethod implements Module for modules without methods.
func (b *Base) CallMethod(ctx context.Context, origin object.Origin, method string, parameters []object.NamedValue) (vtq.Value, error) {
	return "", errors.NotFoundf("method %q", method)
}

// BrowseMember implements Module for modules without browsable members.
func (b *Base) BrowseMember(ctx context.Context, member object.MemberRef) ([]string, error) {
	return nil, nil
}
