// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

// Package supervisor hosts the configured modules: it initialises them in
// the configured order, runs each on its own goroutine, restarts failed ones
// with backoff, and distributes their notifications to the variable stores,
// the historian and the process hub. All notification handling is serialised
// on the supervisor's loop, so modules may notify from any goroutine.
package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"
	"github.com/juju/retry"
	"github.com/juju/worker/v4/catacomb"
	"github.com/kr/pretty"

	"github.com/d-pohl/Mediator.Net/config"
	"github.com/d-pohl/Mediator.Net/core/eventing"
	"github.com/d-pohl/Mediator.Net/core/module"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
	"github.com/d-pohl/Mediator.Net/internal/historian"
	"github.com/d-pohl/Mediator.Net/internal/varstore"
)

var logger = loggo.GetLogger("mediator.supervisor")

const (
	// runRestartDelay is the pause between a failed Run and the restart.
	runRestartDelay = time.Second

	// maxRestartDelay caps the linear restart backoff.
	maxRestartDelay = 10 * time.Second

	// shutdownTimeout is the watchdog on a module's Run returning after
	// shutdown is requested. On expiry the supervisor proceeds anyway.
	shutdownTimeout = 10 * time.Second

	// flushInterval is the cadence of the periodic variable file flush.
	flushInterval = 30 * time.Second
)

// History receives the history-enabled subset of accepted variable updates.
// It is satisfied by the historian manager.
type History interface {
	OnVariableValues(moduleID string, entries []historian.Entry)
}

// Config holds what the supervisor needs to run.
type Config struct {
	// Mediator is the validated process configuration.
	Mediator *config.Config

	// Clock drives restarts, watchdogs and value timestamps.
	Clock clock.Clock

	// Hub receives variable, config and alarm events.
	Hub *pubsub.SimpleHub

	// History historises accepted variable updates.
	History History

	// DataDir is where the per-module variables files live.
	DataDir string
}

// Validate returns an error if the config cannot drive a supervisor.
func (config Config) Validate() error {
	if config.Mediator == nil {
		return errors.NotValidf("nil Mediator")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Hub == nil {
		return errors.NotValidf("nil Hub")
	}
	if config.History == nil {
		return errors.NotValidf("nil History")
	}
	return nil
}

// Supervisor is the module lifecycle worker.
type Supervisor struct {
	catacomb catacomb.Catacomb
	config   Config

	modules []*moduleState
	byID    map[string]*moduleState

	starting atomic.Bool

	mu            sync.Mutex
	notifications []func()
	wake          chan struct{}
}

// New builds and starts the supervisor. Every enabled module's
// implementation must be registered, or construction fails.
func New(cfg Config) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	s := &Supervisor{
		config: cfg,
		byID:   make(map[string]*moduleState),
		wake:   make(chan struct{}, 1),
	}
	s.starting.Store(true)
	for _, mc := range cfg.Mediator.EnabledModules() {
		factory, err := module.FactoryFor(mc.FactoryKey())
		if err != nil {
			return nil, errors.Annotatef(err, "module %q", mc.ID)
		}
		m := &moduleState{
			cfg:     mc,
			factory: factory,
			store:   varstore.New(mc.ID, filepath.Join(cfg.DataDir, mc.VariablesFileName), true),
			state:   StateCreated,
		}
		s.modules = append(s.modules, m)
		s.byID[mc.ID] = m
	}
	if logger.IsTraceEnabled() {
		logger.Tracef("supervising modules: %s", pretty.Sprint(cfg.Mediator.EnabledModules()))
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &s.catacomb,
		Work: s.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return s, nil
}

// Kill is part of the worker.Worker interface.
func (s *Supervisor) Kill() {
	s.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (s *Supervisor) Wait() error {
	return s.catacomb.Wait()
}

// Starting reports whether module initialisation is still in progress.
func (s *Supervisor) Starting() bool {
	return s.starting.Load()
}

func (s *Supervisor) loop() error {
	startupDone := make(chan error, 1)
	go func() {
		startupDone <- s.startup()
	}()
	timer := s.config.Clock.NewTimer(flushInterval)
	defer timer.Stop()
	for {
		select {
		case <-s.catacomb.Dying():
			s.shutdownAll()
			return s.catacomb.ErrDying()
		case err := <-startupDone:
			if err != nil {
				s.shutdownAll()
				return errors.Trace(err)
			}
		case <-s.wake:
			s.processNotifications()
		case <-timer.Chan():
			s.flushAll()
			timer.Reset(flushInterval)
		}
	}
}

// startup initialises sequential modules in configuration order, the rest in
// parallel, then starts every Run loop. Any init failure aborts startup.
func (s *Supervisor) startup() error {
	ctx := s.catacomb.Context(context.Background())
	var sequential, concurrent []*moduleState
	for _, m := range s.modules {
		if m.cfg.ConcurrentInit {
			concurrent = append(concurrent, m)
		} else {
			sequential = append(sequential, m)
		}
	}
	for _, m := range sequential {
		if err := s.initModule(ctx, m); err != nil {
			s.reportInitFailure(m, err)
			return errors.Annotatef(err, "init of module %q", m.cfg.ID)
		}
	}
	initErrors := make([]error, len(concurrent))
	var wg sync.WaitGroup
	for i, m := range concurrent {
		wg.Add(1)
		go func(i int, m *moduleState) {
			defer wg.Done()
			initErrors[i] = s.initModule(ctx, m)
		}(i, m)
	}
	wg.Wait()
	for i, m := range concurrent {
		if err := initErrors[i]; err != nil {
			s.reportInitFailure(m, err)
			return errors.Annotatef(err, "init of module %q", m.cfg.ID)
		}
	}
	for _, m := range s.modules {
		s.startRun(m)
	}
	s.starting.Store(false)
	s.publishEvent(eventing.SystemEvent(
		vtq.Now(s.config.Clock), eventing.SeverityInfo, "",
		eventing.SysStartup, "mediator startup complete"))
	s.writeStartCompleteFile()
	return nil
}

func (s *Supervisor) reportInitFailure(m *moduleState, err error) {
	logger.Errorf("init of module %q failed: %v", m.cfg.ID, err)
	s.publishEvent(eventing.SystemEvent(
		vtq.Now(s.config.Clock), eventing.SeverityAlarm, m.cfg.ID,
		eventing.InitFailed, "module init failed: "+err.Error()))
}

// initModule creates a fresh instance and initialises it. On success the
// module is in InitComplete with a current snapshot and a synced store.
func (s *Supervisor) initModule(ctx context.Context, m *moduleState) error {
	inst := m.factory()
	m.mu.Lock()
	m.instance = inst
	m.state = StateCreated
	m.lastError = ""
	restartCount := m.restartCount
	loaded := m.loaded
	m.mu.Unlock()
	if !loaded {
		if err := m.store.Load(); err != nil {
			return errors.Trace(err)
		}
		m.mu.Lock()
		m.loaded = true
		m.mu.Unlock()
	}
	err := inst.Init(ctx, module.InitContext{
		ModuleID:     m.cfg.ID,
		ModuleName:   m.cfg.Name,
		Config:       namedValues(m.cfg.Config),
		RestartCount: restartCount,
		Backend:      &backend{s: s, m: m},
	})
	if err != nil {
		m.setError(StateInitError, err)
		if abortErr := inst.InitAbort(); abortErr != nil {
			logger.Warningf("module %q: abort after failed init: %v", m.cfg.ID, abortErr)
		}
		return errors.Trace(err)
	}
	infos := inst.AllObjects()
	m.store.Sync(infos, vtq.Now(s.config.Clock))
	m.setSnapshot(newSnapshot(infos))
	m.setState(StateInitComplete)
	return nil
}

// startRun launches the module's Run goroutine and its watcher.
func (s *Supervisor) startRun(m *moduleState) {
	m.shutdownFlag.Store(false)
	runDone := make(chan struct{})
	inst := m.Instance()
	m.mu.Lock()
	m.runDone = runDone
	m.state = StateRunning
	m.mu.Unlock()
	go func() {
		defer close(runDone)
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("module %q: Run panicked: %v", m.cfg.ID, r)
			}
		}()
		inst.Run(m.isShutdown)
	}()
	go s.superviseRun(m, runDone)
}

// superviseRun treats a Run that returns while the module is still meant to
// be running as a failure and schedules a restart.
func (s *Supervisor) superviseRun(m *moduleState, runDone chan struct{}) {
	select {
	case <-runDone:
	case <-s.catacomb.Dying():
		return
	}
	if m.isShutdown() || m.State() != StateRunning {
		return
	}
	logger.Errorf("module %q: Run returned unexpectedly, scheduling restart", m.cfg.ID)
	s.publishEvent(eventing.SystemEvent(
		vtq.Now(s.config.Clock), eventing.SeverityAlarm, m.cfg.ID,
		eventing.ModuleRunError, "module run loop terminated unexpectedly"))
	select {
	case <-s.config.Clock.After(runRestartDelay):
	case <-s.catacomb.Dying():
		return
	}
	s.restartModule(m)
}

// restartModule replaces the module instance and re-initialises it,
// retrying indefinitely with linear backoff capped at maxRestartDelay.
// Overlapping requests coalesce.
func (s *Supervisor) restartModule(m *moduleState) {
	if !m.beginRestart() {
		return
	}
	defer m.endRestart()
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return s.restartOnce(m)
		},
		Attempts: retry.UnlimitedAttempts,
		Delay:    time.Second,
		BackoffFunc: func(delay time.Duration, attempt int) time.Duration {
			next := time.Duration(attempt+1) * time.Second
			if next > maxRestartDelay {
				next = maxRestartDelay
			}
			return next
		},
		Clock: s.config.Clock,
		Stop:  s.catacomb.Dying(),
		NotifyFunc: func(lastError error, attempt int) {
			logger.Errorf("module %q: restart attempt %d failed: %v", m.cfg.ID, attempt, lastError)
			s.publishEvent(eventing.SystemEvent(
				vtq.Now(s.config.Clock), eventing.SeverityAlarm, m.cfg.ID,
				eventing.ModuleRestartError, "module restart failed: "+lastError.Error()))
		},
	})
	if err != nil && !retry.IsRetryStopped(err) {
		logger.Errorf("module %q: restart abandoned: %v", m.cfg.ID, err)
	}
}

func (s *Supervisor) restartOnce(m *moduleState) error {
	s.stopModule(m)
	m.mu.Lock()
	m.restartCount++
	m.mu.Unlock()
	ctx := s.catacomb.Context(context.Background())
	if err := s.initModule(ctx, m); err != nil {
		return errors.Trace(err)
	}
	s.publishEvent(eventing.SystemEvent(
		vtq.Now(s.config.Clock), eventing.SeverityWarning, m.cfg.ID,
		eventing.ModuleRestart, "module restarted"))
	s.startRun(m)
	return nil
}

// stopModule requests shutdown, waits for Run under the watchdog, aborts
// the instance and flushes its variables.
func (s *Supervisor) stopModule(m *moduleState) {
	m.setState(StateShutdownStarted)
	m.shutdownFlag.Store(true)
	m.mu.Lock()
	runDone := m.runDone
	inst := m.instance
	m.mu.Unlock()
	if runDone != nil {
		select {
		case <-runDone:
		case <-s.config.Clock.After(shutdownTimeout):
			logger.Warningf("module %q: shutdown watchdog expired, proceeding", m.cfg.ID)
			s.publishEvent(eventing.SystemEvent(
				vtq.Now(s.config.Clock), eventing.SeverityWarning, m.cfg.ID,
				eventing.ShutdownTimeout, "module did not stop within "+shutdownTimeout.String()))
		}
	}
	if inst != nil {
		if err := inst.InitAbort(); err != nil {
			logger.Warningf("module %q: abort: %v", m.cfg.ID, err)
		}
	}
	if err := m.store.Flush(); err != nil {
		logger.Errorf("module %q: flushing variables: %v", m.cfg.ID, err)
	}
	m.setState(StateShutdownCompleted)
}

// shutdownAll stops every module in parallel and removes the start-complete
// file.
func (s *Supervisor) shutdownAll() {
	var wg sync.WaitGroup
	for _, m := range s.modules {
		if m.State() == StateShutdownCompleted {
			continue
		}
		wg.Add(1)
		go func(m *moduleState) {
			defer wg.Done()
			s.stopModule(m)
		}(m)
	}
	wg.Wait()
	if path := s.config.Mediator.StartCompleteFile; path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warningf("removing start-complete file: %v", err)
		}
	}
}

func (s *Supervisor) flushAll() {
	for _, m := range s.modules {
		if err := m.store.Flush(); err != nil {
			logger.Errorf("module %q: flushing variables: %v", m.cfg.ID, err)
		}
	}
}

func (s *Supervisor) writeStartCompleteFile() {
	path := s.config.Mediator.StartCompleteFile
	if path == "" {
		return
	}
	stamp := s.config.Clock.Now().Local().Format(time.RFC3339)
	if err := os.WriteFile(path, []byte(stamp+"\n"), 0o644); err != nil {
		logger.Errorf("writing start-complete file %q: %v", path, err)
	}
}

func (s *Supervisor) publishEvent(ev eventing.AlarmOrEvent) {
	s.config.Hub.Publish(eventing.TopicAlarmOrEvent, ev)
}

// postNotification queues work for the serialised notification loop.
// Posting never blocks, so modules may notify from anywhere.
func (s *Supervisor) postNotification(f func()) {
	s.mu.Lock()
	s.notifications = append(s.notifications, f)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Supervisor) processNotifications() {
	s.mu.Lock()
	pending := s.notifications
	s.notifications = nil
	s.mu.Unlock()
	for _, f := range pending {
		f()
	}
}

// handleVariableValues runs on the notification loop: it updates the store,
// forwards the history-enabled subset and publishes the accepted changes.
func (s *Supervisor) handleVariableValues(m *moduleState, values []object.VariableValue) {
	snap := m.Snapshot()
	previous := m.store.Update(values)
	var accepted []eventing.VariableValuePrev
	var hist []historian.Entry
	for i, v := range values {
		p := previous[i]
		if p.Missing {
			logger.Warningf("module %q: update of undeclared variable %q dropped", m.cfg.ID, v.Variable)
			continue
		}
		if p.Rejected {
			logger.Debugf("module %q: stale update of %q dropped", m.cfg.ID, v.Variable)
			continue
		}
		vp := eventing.VariableValuePrev{Variable: v.Variable, Value: v.Value, Previous: p.Value}
		accepted = append(accepted, vp)
		desc, ok := snap.variables[v.Variable]
		if !ok || !desc.History.Active() {
			continue
		}
		if desc.History.Mode == object.HistoryValueOrQualityChanged && !vp.Changed() {
			continue
		}
		hist = append(hist, historian.Entry{Variable: v.Variable, Type: desc.Type, Value: v.Value})
	}
	if len(hist) > 0 {
		s.config.History.OnVariableValues(m.cfg.ID, hist)
	}
	if len(accepted) > 0 {
		s.config.Hub.Publish(eventing.TopicVariableValues, eventing.VariableValuesEvent{
			ModuleID: m.cfg.ID,
			Values:   accepted,
		})
	}
}

// handleConfigChanged refreshes the module snapshot and republishes the
// change for subscribed sessions.
func (s *Supervisor) handleConfigChanged(m *moduleState, objects []object.ObjectRef) {
	inst := m.Instance()
	if inst != nil {
		infos := inst.AllObjects()
		m.store.Sync(infos, vtq.Now(s.config.Clock))
		m.setSnapshot(newSnapshot(infos))
	}
	s.config.Hub.Publish(eventing.TopicConfigChanged, eventing.ConfigChangedEvent{
		ModuleID: m.cfg.ID,
		Objects:  objects,
	})
}

func (s *Supervisor) handleAlarmOrEvent(m *moduleState, ev eventing.AlarmOrEvent) {
	if ev.ModuleID == "" {
		ev.ModuleID = m.cfg.ID
	}
	if ev.Time.IsEmpty() {
		ev.Time = vtq.Now(s.config.Clock)
	}
	s.publishEvent(ev)
}

func namedValues(in []config.NamedValue) []object.NamedValue {
	out := make([]object.NamedValue, len(in))
	for i, nv := range in {
		out[i] = object.NamedValue{Name: nv.Name, Value: nv.Value}
	}
	return out
}
