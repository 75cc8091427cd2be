// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package module_test

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/d-pohl/Mediator.Net/core/module"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
)

type BaseSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&BaseSuite{})

const longWait = 10 * time.Second

func (*BaseSuite) TestRunSyncExecutesOnPump(c *gc.C) {
	var b module.Base
	b.Setup(testclock.NewClock(time.Time{}), time.Second, nil)

	var shutdown atomic.Bool
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		b.Run(shutdown.Load)
	}()

	var got int
	err := b.RunSync(context.Background(), func() error {
		got = 42
		return nil
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(got, gc.Equals, 42)

	err = b.RunSync(context.Background(), func() error {
		return errors.New("boom")
	})
	c.Assert(err, gc.ErrorMatches, "boom")

	c.Assert(b.InitAbort(), jc.ErrorIsNil)
	select {
	case <-runDone:
	case <-time.After(longWait):
		c.Fatalf("pump did not stop")
	}
}

func (*BaseSuite) TestPostOrdering(c *gc.C) {
	var b module.Base
	b.Setup(testclock.NewClock(time.Time{}), time.Second, nil)

	var shutdown atomic.Bool
	go b.Run(shutdown.Load)
	defer b.InitAbort()

	var order []int
	for i := 0; i < 10; i++ {
		i := i
		err := b.Post(func() { order = append(order, i) })
		c.Assert(err, jc.ErrorIsNil)
	}
	// A sync call behind the posts observes all of them, in order.
	err := b.RunSync(context.Background(), func() error { return nil })
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(order, jc.DeepEquals, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
}

func (*BaseSuite) TestCycleHookAndShutdownPolling(c *gc.C) {
	clk := testclock.NewClock(time.Time{})
	var cycles atomic.Int32
	var b module.Base
	b.Setup(clk, time.Second, func(now vtq.Timestamp) {
		cycles.Add(1)
	})

	var shutdown atomic.Bool
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		b.Run(shutdown.Load)
	}()

	err := clk.WaitAdvance(time.Second, longWait, 1)
	c.Assert(err, jc.ErrorIsNil)
	err = clk.WaitAdvance(time.Second, longWait, 1)
	c.Assert(err, jc.ErrorIsNil)
	// Hooks run on the pump goroutine, so give them a moment to land.
	deadline := time.Now().Add(longWait)
	for cycles.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	c.Assert(cycles.Load() >= 2, jc.IsTrue)

	shutdown.Store(true)
	err = clk.WaitAdvance(time.Second, longWait, 1)
	c.Assert(err, jc.ErrorIsNil)
	select {
	case <-runDone:
	case <-time.After(longWait):
		c.Fatalf("pump ignored shutdown flag")
	}
}

func (*BaseSuite) TestRunSyncAfterStop(c *gc.C) {
	var b module.Base
	b.Setup(testclock.NewClock(time.Time{}), time.Second, nil)
	c.Assert(b.InitAbort(), jc.ErrorIsNil)

	err := b.RunSync(context.Background(), func() error { return nil })
	c.Assert(err, gc.ErrorMatches, "module stopped")
	err = b.Post(func() {})
	c.Assert(err, gc.ErrorMatches, "module stopped")
}

func (*BaseSuite) TestRunSyncTimeout(c *gc.C) {
	var b module.Base
	b.Setup(testclock.NewClock(time.Time{}), time.Second, nil)
	// No pump running: the posted operation is never executed.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := b.RunSync(ctx, func() error { return nil })
	c.Assert(err, jc.ErrorIs, errors.Timeout)
}

func (*BaseSuite) TestDefaults(c *gc.C) {
	var b module.Base
	c.Assert(b.AllObjects(), gc.IsNil)
	c.Assert(b.MetaInfo().Classes, gc.IsNil)

	_, err := b.ReadVariables(context.Background(), moduleOrigin(), nil)
	c.Assert(err, jc.ErrorIs, errors.NotImplemented)
	_, err = b.WriteVariables(context.Background(), moduleOrigin(), nil)
	c.Assert(err, jc.ErrorIs, errors.NotImplemented)
	_, err = b.UpdateConfig(context.Background(), moduleOrigin(), module.UpdateConfigRequest{})
	c.Assert(err, jc.ErrorIs, errors.NotImplemented)
	_, err = b.CallMethod(context.Background(), moduleOrigin(), "reset", nil)
	c.Assert(err, jc.ErrorIs, errors.NotFound)
	vals, err := b.BrowseMember(context.Background(), memberRef())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(vals, gc.IsNil)
}

func moduleOrigin() object.Origin {
	return object.Origin{Kind: object.OriginModule, ID: "test"}
}

func memberRef() object.MemberRef {
	return object.MemberRef{Object: object.MakeObjectRef("M", "obj"), Name: "Member"}
}
