// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package historian_test

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/pubsub/v2"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/d-pohl/Mediator.Net/core/eventing"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
	"github.com/d-pohl/Mediator.Net/internal/historian"
)

type ManagerSuite struct {
	jujutesting.IsolationSuite

	hub     *pubsub.SimpleHub
	history chan eventing.HistoryUpdateEvent
	alarms  chan eventing.AlarmOrEvent
}

var _ = gc.Suite(&ManagerSuite{})

func (s *ManagerSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.hub = pubsub.NewSimpleHub(nil)
	s.history = make(chan eventing.HistoryUpdateEvent, 16)
	s.alarms = make(chan eventing.AlarmOrEvent, 16)
	unsub := s.hub.Subscribe(eventing.TopicVariableHistory, func(_ string, data interface{}) {
		s.history <- data.(eventing.HistoryUpdateEvent)
	})
	s.AddCleanup(func(*gc.C) { unsub() })
	unsub = s.hub.Subscribe(eventing.TopicAlarmOrEvent, func(_ string, data interface{}) {
		s.alarms <- data.(eventing.AlarmOrEvent)
	})
	s.AddCleanup(func(*gc.C) { unsub() })
}

func (s *ManagerSuite) newManager(c *gc.C, cfg historian.ManagerConfig) *historian.Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	cfg.Hub = s.hub
	m, err := historian.NewManager(cfg)
	c.Assert(err, jc.ErrorIsNil)
	s.AddCleanup(func(c *gc.C) { workertest.CleanKill(c, m) })
	return m
}

// openStore returns a recordingStore whose first append does not block.
func openStore() *recordingStore {
	store := newRecordingStore()
	close(store.appendGate)
	return store
}

func (s *ManagerSuite) TestValidateConfig(c *gc.C) {
	_, err := historian.NewManager(historian.ManagerConfig{
		Clock: clock.WallClock,
		Hub:   s.hub,
	})
	c.Check(err, gc.ErrorMatches, "no history databases not valid")

	_, err = historian.NewManager(historian.ManagerConfig{
		Clock:     clock.WallClock,
		Hub:       s.hub,
		Databases: []historian.Database{{Name: "default", Store: openStore()}},
		Routes:    map[string]string{"IO": "other"},
	})
	c.Check(err, gc.ErrorMatches, `module "IO" routed to unknown history database "other" not valid`)
}

func (s *ManagerSuite) TestAppendPublishesHistoryChange(c *gc.C) {
	store := openStore()
	m := s.newManager(c, historian.ManagerConfig{
		Databases: []historian.Database{{Name: "default", Store: store}},
		Routes:    map[string]string{"IO": "default"},
	})

	m.OnVariableValues("IO", []historian.Entry{
		entry("A", 1000),
		entry("B", 2000),
		entry("A", 3000),
	})

	select {
	case ev := <-s.history:
		c.Assert(ev.Changes, gc.HasLen, 2)
		c.Check(ev.Changes[0].Variable, gc.Equals, object.MakeVariableRef("IO", "Root", "A"))
		c.Check(ev.Changes[0].Start, gc.Equals, vtq.TimestampFromMillis(1000))
		c.Check(ev.Changes[0].End, gc.Equals, vtq.TimestampFromMillis(3000))
		c.Check(ev.Changes[1].Variable, gc.Equals, object.MakeVariableRef("IO", "Root", "B"))
		c.Check(ev.Changes[1].Start, gc.Equals, vtq.TimestampFromMillis(2000))
		c.Check(ev.Changes[1].End, gc.Equals, vtq.TimestampFromMillis(2000))
	case <-time.After(jujutesting.LongWait):
		c.Fatalf("history change never published")
	}
	c.Check(store.appendBatches(), gc.HasLen, 1)
}

func (s *ManagerSuite) TestUnroutedModuleDropsValues(c *gc.C) {
	store := openStore()
	m := s.newManager(c, historian.ManagerConfig{
		Databases: []historian.Database{{Name: "default", Store: store}},
		Routes:    map[string]string{"IO": "default"},
	})

	m.OnVariableValues("NOPE", []historian.Entry{entry("A", 1000)})

	select {
	case <-s.history:
		c.Fatalf("unrouted values must not be historised")
	case <-time.After(jujutesting.ShortWait):
	}
	c.Check(store.appendBatches(), gc.HasLen, 0)
}

func (s *ManagerSuite) TestTimestampDriftWarning(c *gc.C) {
	m := s.newManager(c, historian.ManagerConfig{
		TimestampWarning: time.Hour,
		Databases:        []historian.Database{{Name: "default", Store: openStore()}},
		Routes:           map[string]string{"IO": "default"},
	})

	// A timestamp from 1970 is well past any tolerance.
	m.OnVariableValues("IO", []historian.Entry{entry("A", 1000)})

	select {
	case ev := <-s.alarms:
		c.Check(ev.Type, gc.Equals, eventing.TimestampWarning)
		c.Check(ev.Severity, gc.Equals, eventing.SeverityWarning)
		c.Check(ev.ModuleID, gc.Equals, "IO")
		c.Check(ev.IsSystem, jc.IsTrue)
	case <-time.After(jujutesting.LongWait):
		c.Fatalf("drift warning never published")
	}
	// The value is appended regardless.
	select {
	case <-s.history:
	case <-time.After(jujutesting.LongWait):
		c.Fatalf("history change never published")
	}
}

func (s *ManagerSuite) TestReadRoutesByModule(c *gc.C) {
	store := openStore()
	m := s.newManager(c, historian.ManagerConfig{
		Databases: []historian.Database{{Name: "default", Store: store}},
		Routes:    map[string]string{"IO": "default"},
	})

	_, err := m.ReadRaw(context.Background(), historian.ReadRawRequest{
		Variable:  object.MakeVariableRef("IO", "Root", "A"),
		End:       vtq.Max,
		MaxValues: -1,
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(store.callLog(), jc.DeepEquals, []string{"read"})

	_, err = m.ReadRaw(context.Background(), historian.ReadRawRequest{
		Variable: object.MakeVariableRef("NOPE", "Root", "A"),
	})
	c.Check(err, gc.ErrorMatches, `history database for module "NOPE" not found`)
}

func (s *ManagerSuite) TestDeleteVariablesSpansDatabases(c *gc.C) {
	first, second := openStore(), openStore()
	m := s.newManager(c, historian.ManagerConfig{
		Databases: []historian.Database{
			{Name: "one", Store: first},
			{Name: "two", Store: second},
		},
		Routes: map[string]string{"IO": "one", "CALC": "two"},
	})

	deleted, err := m.DeleteVariables(context.Background(), []object.VariableRef{
		object.MakeVariableRef("IO", "Root", "A"),
		object.MakeVariableRef("CALC", "Root", "B"),
		object.MakeVariableRef("IO", "Root", "C"),
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(deleted, gc.Equals, int64(0))
	c.Check(first.callLog(), jc.DeepEquals, []string{"dropchannels"})
	c.Check(second.callLog(), jc.DeepEquals, []string{"dropchannels"})
}

func (s *ManagerSuite) TestDeleteIntervalPublishesOnlyWhenRowsWereRemoved(c *gc.C) {
	store := openStore()
	m := s.newManager(c, historian.ManagerConfig{
		Databases: []historian.Database{{Name: "default", Store: store}},
		Routes:    map[string]string{"IO": "default"},
	})

	// The recording store reports zero deleted rows, so no event follows.
	deleted, err := m.DeleteInterval(context.Background(),
		object.MakeVariableRef("IO", "Root", "A"), vtq.Empty, vtq.Max)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(deleted, gc.Equals, int64(0))
	select {
	case <-s.history:
		c.Fatalf("no rows were removed, nothing to publish")
	case <-time.After(jujutesting.ShortWait):
	}
}
