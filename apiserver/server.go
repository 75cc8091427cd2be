// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

// Package apiserver exposes the mediator to clients: an HTTP POST endpoint
// per RPC method and one websocket per session over which change events are
// pushed. The server owns the session table, the per-session subscriptions,
// and the fan-out of hub events to subscribed sessions.
package apiserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bmizerany/pat"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"
	"github.com/juju/worker/v4/catacomb"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/d-pohl/Mediator.Net/config"
	"github.com/d-pohl/Mediator.Net/core/eventing"
	"github.com/d-pohl/Mediator.Net/core/module"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
	"github.com/d-pohl/Mediator.Net/internal/historian"
	"github.com/d-pohl/Mediator.Net/rpc/params"
)

var logger = loggo.GetLogger("mediator.apiserver")

const (
	// sweepInterval is the cadence of the abandoned-session sweep.
	sweepInterval = time.Second

	// defaultSyncTimeout bounds sync reads and writes whose request does
	// not carry an explicit timeout.
	defaultSyncTimeout = 15 * time.Second
)

// Core is the mediator core the server dispatches requests into. It is
// satisfied by the module supervisor.
type Core interface {
	Starting() bool
	ModuleInfos() []params.ModuleInfo
	Locations() []object.Location
	MetaInfo(moduleID string) (object.MetaInfo, error)
	AllObjects(moduleID string) ([]object.ObjectInfo, error)
	ObjectsOfType(moduleID, className string, withVariables bool) ([]object.ObjectInfo, error)
	ObjectsByID(refs []object.ObjectRef) ([]object.ObjectInfo, error)
	ObjectValuesByID(refs []object.ObjectRef) ([]object.ObjectValue, error)
	ChildrenOfObjects(refs []object.ObjectRef) ([]object.ObjectInfo, error)
	ParentOfObject(ref object.ObjectRef) (*object.ObjectInfo, error)
	RootObject(moduleID string) (object.ObjectInfo, error)
	ObjectAncestors(ref object.ObjectRef) []object.ObjectRef
	MemberValues(ctx context.Context, members []object.MemberRef) ([]object.MemberValue, error)
	BrowseMember(ctx context.Context, member object.MemberRef) ([]string, error)
	ReadVariables(refs []object.VariableRef, ignoreMissing bool) ([]vtq.VTQ, error)
	ReadVariablesSync(ctx context.Context, origin object.Origin, refs []object.VariableRef, ignoreMissing bool) ([]vtq.VTQ, error)
	WriteVariables(origin object.Origin, values []object.VariableValue, ignoreMissing bool) ([]module.WriteResult, error)
	WriteVariablesSync(ctx context.Context, origin object.Origin, values []object.VariableValue, ignoreMissing bool) ([]module.WriteResult, error)
	ReadAllVariablesOfObjectTree(root object.ObjectRef) ([]object.VariableValue, error)
	VariablesOfObjectTree(root object.ObjectRef) ([]object.VariableRef, error)
	UpdateConfig(ctx context.Context, origin object.Origin, req module.UpdateConfigRequest) ([]object.ObjectRef, error)
	CallMethod(ctx context.Context, origin object.Origin, moduleID, method string, parameters []object.NamedValue) (vtq.Value, error)
}

// History is the historian surface the server serves. It is satisfied by the
// historian manager.
type History interface {
	ReadRaw(ctx context.Context, req historian.ReadRawRequest) ([]vtq.VTTQ, error)
	Count(ctx context.Context, v object.VariableRef, start, end vtq.Timestamp, filter params.QualityFilter) (int64, error)
	Modify(ctx context.Context, v object.VariableRef, mode params.ModifyMode, data []vtq.VTQ) error
	DeleteInterval(ctx context.Context, v object.VariableRef, start, end vtq.Timestamp) (int64, error)
	LatestTimestampDB(ctx context.Context, v object.VariableRef, start, end vtq.Timestamp) (vtq.Timestamp, error)
	DeleteVariables(ctx context.Context, vars []object.VariableRef) (int64, error)
}

// Config holds what the server needs to run.
type Config struct {
	// Mediator supplies the listen address, the session idle window and
	// the login accounts.
	Mediator *config.Config

	// Core handles the dispatched requests.
	Core Core

	// History handles the historian requests.
	History History

	// Hub delivers the change events the server fans out to sessions.
	Hub *pubsub.SimpleHub

	// Clock drives the abandonment sweep and the sync-op timeouts.
	Clock clock.Clock

	// Listener overrides the configured listen address when set; the
	// server takes ownership. Tests listen on port 0 this way.
	Listener net.Listener

	// Registerer receives the server metrics when set.
	Registerer prometheus.Registerer
}

// Validate returns an error if the config cannot drive a server.
func (config Config) Validate() error {
	if config.Mediator == nil {
		return errors.NotValidf("nil Mediator")
	}
	if config.Core == nil {
		return errors.NotValidf("nil Core")
	}
	if config.History == nil {
		return errors.NotValidf("nil History")
	}
	if config.Hub == nil {
		return errors.NotValidf("nil Hub")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Server is the client-facing worker.
type Server struct {
	catacomb catacomb.Catacomb
	config   Config

	listener net.Listener
	metrics  *Collector

	mu       sync.Mutex
	sessions map[string]*session
}

// NewServer starts the server. The listener is bound before the worker is
// reported started, so the address is usable immediately.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	listener := cfg.Listener
	if listener == nil {
		addr := net.JoinHostPort(cfg.Mediator.ClientListenHost, strconv.Itoa(cfg.Mediator.ClientListenPort))
		var err error
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			return nil, errors.Annotatef(err, "listening on %q", addr)
		}
	}
	s := &Server{
		config:   cfg,
		listener: listener,
		metrics:  NewCollector(),
		sessions: make(map[string]*session),
	}
	if cfg.Registerer != nil {
		if err := cfg.Registerer.Register(s.metrics); err != nil {
			_ = listener.Close()
			return nil, errors.Annotate(err, "registering metrics")
		}
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &s.catacomb,
		Work: s.loop,
	}); err != nil {
		_ = listener.Close()
		return nil, errors.Trace(err)
	}
	return s, nil
}

// Kill is part of the worker.Worker interface.
func (s *Server) Kill() {
	s.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (s *Server) Wait() error {
	return s.catacomb.Wait()
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) loop() error {
	unsubscribers := []func(){
		s.config.Hub.Subscribe(eventing.TopicVariableValues, s.onVariableValues),
		s.config.Hub.Subscribe(eventing.TopicVariableHistory, s.onVariableHistory),
		s.config.Hub.Subscribe(eventing.TopicConfigChanged, s.onConfigChanged),
		s.config.Hub.Subscribe(eventing.TopicAlarmOrEvent, s.onAlarmOrEvent),
	}
	defer func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}()

	mux := pat.New()
	mux.Post("/mediator/:method", http.HandlerFunc(s.serveRPC))
	mux.Get("/mediator/events", http.HandlerFunc(s.serveEvents))
	httpServer := &http.Server{Handler: mux}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- httpServer.Serve(s.listener)
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
		s.closeAllSessions()
	}()

	timer := s.config.Clock.NewTimer(sweepInterval)
	defer timer.Stop()
	for {
		select {
		case <-s.catacomb.Dying():
			return s.catacomb.ErrDying()
		case err := <-serveDone:
			if err == http.ErrServerClosed {
				err = nil
			}
			return errors.Annotate(err, "http server")
		case <-timer.Chan():
			s.sweepAbandoned()
			timer.Reset(sweepInterval)
		}
	}
}

// sweepAbandoned purges sessions whose client stopped acknowledging pushed
// events. Abandoned sessions are closed without notification.
func (s *Server) sweepAbandoned() {
	now := s.config.Clock.Now()
	window := s.config.Mediator.SessionIdleTimeout.Value()
	var abandoned []*session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.IsAbandoned(now, window) {
			delete(s.sessions, id)
			abandoned = append(abandoned, sess)
		}
	}
	active := len(s.sessions)
	s.mu.Unlock()
	s.metrics.sessions.Set(float64(active))
	for _, sess := range abandoned {
		logger.Infof("purging abandoned session %q of %q", sess.id, sess.login)
		sess.Close()
	}
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	active := len(s.sessions)
	s.mu.Unlock()
	s.metrics.sessions.Set(float64(active))
}

// session returns the authenticated session with the given id.
func (s *Server) session(id string) (*session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok || !sess.Authenticated() {
		return nil, errors.NewBadRequest(nil, "invalid session")
	}
	sess.Touch(s.config.Clock.Now())
	return sess, nil
}

// pendingSession returns the session with the given id whether or not the
// challenge has been answered yet.
func (s *Server) pendingSession(id string) (*session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, errors.NewBadRequest(nil, "invalid session")
	}
	return sess, nil
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	active := len(s.sessions)
	s.mu.Unlock()
	s.metrics.sessions.Set(float64(active))
	if ok {
		sess.Close()
	}
}

func (s *Server) closeAllSessions() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*session)
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}
}

// eachSession snapshots the authenticated sessions and applies f outside the
// table lock.
func (s *Server) eachSession(f func(*session)) {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.Authenticated() {
			sessions = append(sessions, sess)
		}
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		f(sess)
	}
}
