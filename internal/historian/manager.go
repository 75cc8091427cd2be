// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package historian

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/pubsub/v2"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"

	"github.com/d-pohl/Mediator.Net/core/eventing"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
	"github.com/d-pohl/Mediator.Net/rpc/params"
)

// Database names one history database and the store behind it.
type Database struct {
	Name            string
	PrioritizeReads bool
	Store           Store
}

// ManagerConfig holds what the historian manager needs to run.
type ManagerConfig struct {
	// Clock supplies insertion timestamps and the drift check.
	Clock clock.Clock

	// Hub receives history-change notifications and drift warnings.
	Hub *pubsub.SimpleHub

	// TimestampWarning is the tolerated difference between a value's
	// timestamp and the wall clock before a warning event is raised.
	// Zero disables the check.
	TimestampWarning time.Duration

	// Databases lists the history databases, one worker each.
	Databases []Database

	// Routes maps a module ID to the name of its history database.
	Routes map[string]string
}

// Validate returns an error if the config cannot drive a manager.
func (config ManagerConfig) Validate() error {
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Hub == nil {
		return errors.NotValidf("nil Hub")
	}
	if len(config.Databases) == 0 {
		return errors.NotValidf("no history databases")
	}
	names := make(map[string]bool)
	for _, db := range config.Databases {
		if db.Name == "" {
			return errors.NotValidf("history database with empty name")
		}
		if db.Store == nil {
			return errors.NotValidf("history database %q with nil store", db.Name)
		}
		if names[db.Name] {
			return errors.NotValidf("duplicate history database %q", db.Name)
		}
		names[db.Name] = true
	}
	for moduleID, name := range config.Routes {
		if !names[name] {
			return errors.NotValidf("module %q routed to unknown history database %q", moduleID, name)
		}
	}
	return nil
}

// Manager owns one worker per history database and routes work by the
// variable's owning module. It satisfies worker.Worker; killing it
// terminates every database worker.
type Manager struct {
	catacomb catacomb.Catacomb
	config   ManagerConfig
	workers  map[string]*Worker
}

// NewManager starts a worker per configured database.
func NewManager(config ManagerConfig) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	m := &Manager{
		config:  config,
		workers: make(map[string]*Worker),
	}
	var children []worker.Worker
	for _, db := range config.Databases {
		w, err := NewWorker(WorkerConfig{
			Name:            db.Name,
			Store:           db.Store,
			PrioritizeReads: db.PrioritizeReads,
			Clock:           config.Clock,
		})
		if err != nil {
			for _, started := range children {
				started.Kill()
			}
			return nil, errors.Annotatef(err, "starting historian worker %q", db.Name)
		}
		m.workers[db.Name] = w
		children = append(children, w)
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &m.catacomb,
		Work: m.loop,
		Init: children,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return m, nil
}

// Kill is part of the worker.Worker interface.
func (m *Manager) Kill() {
	m.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (m *Manager) Wait() error {
	return m.catacomb.Wait()
}

func (m *Manager) loop() error {
	<-m.catacomb.Dying()
	return m.catacomb.ErrDying()
}

func (m *Manager) workerFor(moduleID string) (*Worker, error) {
	name, ok := m.config.Routes[moduleID]
	if !ok {
		return nil, errors.NotFoundf("history database for module %q", moduleID)
	}
	return m.workers[name], nil
}

// OnVariableValues historises a batch of values of one module. The append is
// queued and runs asynchronously; after it commits, a history-change
// notification is published on the hub. Values whose timestamp strays too
// far from the wall clock raise a warning event but are appended all the
// same.
func (m *Manager) OnVariableValues(moduleID string, entries []Entry) {
	if len(entries) == 0 {
		return
	}
	w, err := m.workerFor(moduleID)
	if err != nil {
		logger.Errorf("dropping %d history values: %v", len(entries), err)
		return
	}
	m.checkTimestamps(moduleID, entries)
	done := w.Append(entries)
	go func() {
		var res AppendResult
		select {
		case res = <-done:
		case <-m.catacomb.Dying():
			return
		}
		if res.Err != nil {
			logger.Errorf("module %q: historising %d values failed: %v",
				moduleID, len(entries), res.Err)
			return
		}
		m.publishChanges(entries, res.ItemErrors)
	}()
}

func (m *Manager) checkTimestamps(moduleID string, entries []Entry) {
	if m.config.TimestampWarning <= 0 {
		return
	}
	now := vtq.Now(m.config.Clock)
	for _, e := range entries {
		diff := now.Sub(e.Value.T)
		if diff < 0 {
			diff = -diff
		}
		if diff <= m.config.TimestampWarning {
			continue
		}
		m.config.Hub.Publish(eventing.TopicAlarmOrEvent, eventing.SystemEvent(
			now, eventing.SeverityWarning, moduleID, eventing.TimestampWarning,
			"timestamp of variable "+e.Variable.String()+" is "+diff.String()+" from wall clock",
		))
		return
	}
}

// publishChanges reports the time range each variable's history changed in,
// skipping values the store rejected.
func (m *Manager) publishChanges(entries []Entry, itemErrors []string) {
	ranges := make(map[object.VariableRef]*eventing.HistoryChange)
	var order []object.VariableRef
	for i, e := range entries {
		if i < len(itemErrors) && itemErrors[i] != "" {
			continue
		}
		r, ok := ranges[e.Variable]
		if !ok {
			r = &eventing.HistoryChange{Variable: e.Variable, Start: e.Value.T, End: e.Value.T}
			ranges[e.Variable] = r
			order = append(order, e.Variable)
			continue
		}
		if e.Value.T.Before(r.Start) {
			r.Start = e.Value.T
		}
		if e.Value.T.After(r.End) {
			r.End = e.Value.T
		}
	}
	if len(order) == 0 {
		return
	}
	changes := make([]eventing.HistoryChange, 0, len(order))
	for _, v := range order {
		changes = append(changes, *ranges[v])
	}
	m.config.Hub.Publish(eventing.TopicVariableHistory, eventing.HistoryUpdateEvent{Changes: changes})
}

// ReadRaw reads stored values of one variable, ascending in time. The
// context bounds the wait, not the underlying work.
func (m *Manager) ReadRaw(ctx context.Context, req ReadRawRequest) ([]vtq.VTTQ, error) {
	w, err := m.workerFor(req.Variable.Object.Module)
	if err != nil {
		return nil, errors.Trace(err)
	}
	select {
	case res := <-w.ReadRaw(req):
		return res.Values, errors.Trace(res.Err)
	case <-ctx.Done():
		return nil, errors.Timeoutf("history read of %q", req.Variable)
	case <-m.catacomb.Dying():
		return nil, ErrTerminated
	}
}

// Count counts stored values of one variable in a closed interval.
func (m *Manager) Count(ctx context.Context, v object.VariableRef, start, end vtq.Timestamp, filter params.QualityFilter) (int64, error) {
	w, err := m.workerFor(v.Object.Module)
	if err != nil {
		return 0, errors.Trace(err)
	}
	select {
	case res := <-w.Count(v, start, end, filter):
		return res.Count, errors.Trace(res.Err)
	case <-ctx.Done():
		return 0, errors.Timeoutf("history count of %q", v)
	case <-m.catacomb.Dying():
		return 0, ErrTerminated
	}
}

// Modify edits stored values of one variable and, on success, publishes the
// affected time range.
func (m *Manager) Modify(ctx context.Context, v object.VariableRef, mode params.ModifyMode, data []vtq.VTQ) error {
	w, err := m.workerFor(v.Object.Module)
	if err != nil {
		return errors.Trace(err)
	}
	select {
	case err := <-w.Modify(v, mode, data):
		if err != nil {
			return errors.Trace(err)
		}
	case <-ctx.Done():
		return errors.Timeoutf("history modify of %q", v)
	case <-m.catacomb.Dying():
		return ErrTerminated
	}
	start, end := vtq.Max, vtq.Empty
	for _, x := range data {
		if x.T.Before(start) {
			start = x.T
		}
		if x.T.After(end) {
			end = x.T
		}
	}
	if mode == params.ModifyReplaceAll || len(data) == 0 {
		start, end = vtq.Empty, vtq.Max
	}
	m.config.Hub.Publish(eventing.TopicVariableHistory, eventing.HistoryUpdateEvent{
		Changes: []eventing.HistoryChange{{Variable: v, Start: start, End: end}},
	})
	return nil
}

// DeleteInterval removes stored values of one variable in a closed interval.
func (m *Manager) DeleteInterval(ctx context.Context, v object.VariableRef, start, end vtq.Timestamp) (int64, error) {
	w, err := m.workerFor(v.Object.Module)
	if err != nil {
		return 0, errors.Trace(err)
	}
	select {
	case res := <-w.DeleteInterval(v, start, end):
		if res.Err != nil {
			return 0, errors.Trace(res.Err)
		}
		if res.Deleted > 0 {
			m.config.Hub.Publish(eventing.TopicVariableHistory, eventing.HistoryUpdateEvent{
				Changes: []eventing.HistoryChange{{Variable: v, Start: start, End: end}},
			})
		}
		return res.Deleted, nil
	case <-ctx.Done():
		return 0, errors.Timeoutf("history delete of %q", v)
	case <-m.catacomb.Dying():
		return 0, ErrTerminated
	}
}

// LatestTimestampDB returns the latest insertion timestamp of one variable
// in a closed interval, Empty for none.
func (m *Manager) LatestTimestampDB(ctx context.Context, v object.VariableRef, start, end vtq.Timestamp) (vtq.Timestamp, error) {
	w, err := m.workerFor(v.Object.Module)
	if err != nil {
		return vtq.Empty, errors.Trace(err)
	}
	select {
	case res := <-w.LatestTimestampDB(v, start, end):
		return res.T, errors.Trace(res.Err)
	case <-ctx.Done():
		return vtq.Empty, errors.Timeoutf("history query of %q", v)
	case <-m.catacomb.Dying():
		return vtq.Empty, ErrTerminated
	}
}

// DeleteVariables drops the channels of the given variables, which may live
// in different databases, and reports how many existed.
func (m *Manager) DeleteVariables(ctx context.Context, vars []object.VariableRef) (int64, error) {
	groups := make(map[*Worker][]object.VariableRef)
	var order []*Worker
	for _, v := range vars {
		w, err := m.workerFor(v.Object.Module)
		if err != nil {
			return 0, errors.Trace(err)
		}
		if _, ok := groups[w]; !ok {
			order = append(order, w)
		}
		groups[w] = append(groups[w], v)
	}
	var total int64
	for _, w := range order {
		select {
		case res := <-w.DeleteChannels(groups[w]):
			if res.Err != nil {
				return total, errors.Trace(res.Err)
			}
			total += res.Deleted
		case <-ctx.Done():
			return total, errors.Timeoutf("history channel delete")
		case <-m.catacomb.Dying():
			return total, ErrTerminated
		}
	}
	return total, nil
}
