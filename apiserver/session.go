// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package apiserver

import (
	"bytes"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"gopkg.in/tomb.v2"

	"github.com/d-pohl/Mediator.Net/core/eventing"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/rpc/params"
)

// ackText is the application-level acknowledgement the client sends for
// every pushed event frame.
var ackText = []byte("OK")

// handshakeReadLimit bounds the first websocket frame, which carries only
// the session id.
const handshakeReadLimit = 1024

// varSubscription is a session's interest in variable value or history
// changes: an explicit set of variables plus a set of object-tree roots
// covering every variable beneath them.
type varSubscription struct {
	enabled   bool
	options   params.SubscriptionOptions
	variables set.Strings
	roots     set.Strings
}

func newVarSubscription() varSubscription {
	return varSubscription{
		variables: set.NewStrings(),
		roots:     set.NewStrings(),
	}
}

// session is one authenticated client context. Field access is guarded by
// mu; the pusher goroutine owns the websocket.
type session struct {
	id        string
	challenge string
	password  string
	login     string
	roles     []string
	isModule  bool

	tomb tomb.Tomb

	mu            sync.Mutex
	authenticated bool
	lastActivity  time.Time

	varValues  varSubscription
	varHistory varSubscription
	configObjs set.Strings
	alarms     bool
	alarmsMin  eventing.Severity

	// queue is the outbound event queue; the pusher dequeues one frame at
	// a time and waits for the ack before the next.
	queue     []queuedEvent
	queueWake chan struct{}
	// oldestQueued is the enqueue time of the head of the queue, used by
	// the abandonment predicate while no socket is attached.
	oldestQueued time.Time
	// awaitingAckSince is set while the pusher waits for an ack.
	awaitingAckSince time.Time

	socket *websocket.Conn
}

// queuedEvent is one pending outbound frame. Variable value events keep
// their per-variable map so later updates can coalesce into them; the wire
// frame is rendered only when the pusher takes the event.
type queuedEvent struct {
	kind     string
	values   map[string]object.VariableValue
	order    []string
	refsOnly bool
	frame    interface{}
}

func newSession(id, challenge, password, login string, roles []string, isModule bool, now time.Time) *session {
	s := &session{
		id:           id,
		challenge:    challenge,
		password:     password,
		login:        login,
		roles:        roles,
		isModule:     isModule,
		lastActivity: now,
		varValues:    newVarSubscription(),
		varHistory:   newVarSubscription(),
		configObjs:   set.NewStrings(),
		queueWake:    make(chan struct{}, 1),
	}
	// Keep the tomb alive until Close; the pusher is added when a socket
	// attaches.
	s.tomb.Go(func() error {
		<-s.tomb.Dying()
		return nil
	})
	return s
}

// Authenticated reports whether the login challenge has been answered.
func (s *session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *session) setAuthenticated() {
	s.mu.Lock()
	s.authenticated = true
	s.mu.Unlock()
}

// Touch records client activity.
func (s *session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// IsAbandoned reports whether the client stopped consuming events: either an
// ack has been outstanding for longer than the idle window, or events have
// been queueing for longer than the window with no socket attached. A
// pending login that is never completed expires the same way.
func (s *session) IsAbandoned(now time.Time, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated {
		return now.Sub(s.lastActivity) > window
	}
	if !s.awaitingAckSince.IsZero() && now.Sub(s.awaitingAckSince) > window {
		return true
	}
	if s.socket == nil && len(s.queue) > 0 && now.Sub(s.oldestQueued) > window {
		return true
	}
	return false
}

// Close tears the session down, including any attached socket.
func (s *session) Close() {
	s.mu.Lock()
	socket := s.socket
	s.socket = nil
	s.mu.Unlock()
	if socket != nil {
		_ = socket.Close()
	}
	s.tomb.Kill(nil)
	_ = s.tomb.Wait()
}

// enqueue appends a rendered event frame.
func (s *session) enqueue(kind string, frame interface{}, now time.Time) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.oldestQueued = now
	}
	s.queue = append(s.queue, queuedEvent{kind: kind, frame: frame})
	s.mu.Unlock()
	s.wakePusher()
}

// enqueueVarValues appends a variable-value frame. With coalescing enabled
// it folds into the newest queued value frame instead, keeping only the
// latest value per variable, so a slow client sees current state rather than
// a growing backlog.
func (s *session) enqueueVarValues(values map[string]object.VariableValue, order []string, now time.Time, options params.SubscriptionOptions) {
	s.mu.Lock()
	if options.CoalesceEnabled() {
		if n := len(s.queue); n > 0 && s.queue[n-1].kind == params.EventVariableValueChanged {
			last := &s.queue[n-1]
			for _, key := range order {
				if _, ok := last.values[key]; !ok {
					last.order = append(last.order, key)
				}
				last.values[key] = values[key]
			}
			s.mu.Unlock()
			s.wakePusher()
			return
		}
	}
	if len(s.queue) == 0 {
		s.oldestQueued = now
	}
	s.queue = append(s.queue, queuedEvent{
		kind:     params.EventVariableValueChanged,
		values:   values,
		order:    order,
		refsOnly: !options.SendValues(),
	})
	s.mu.Unlock()
	s.wakePusher()
}

func (s *session) wakePusher() {
	select {
	case s.queueWake <- struct{}{}:
	default:
	}
}

// dequeue pops the head frame, or returns false for an empty queue.
func (s *session) dequeue(now time.Time) (queuedEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return queuedEvent{}, false
	}
	head := s.queue[0]
	s.queue = s.queue[1:]
	s.oldestQueued = now
	return head, true
}

// AttachSocket binds the websocket to the session and starts the pusher.
// Only one socket may be attached at a time.
func (s *session) AttachSocket(conn *websocket.Conn) error {
	s.mu.Lock()
	if s.socket != nil {
		s.mu.Unlock()
		return errors.NewBadRequest(nil, "session already has an event socket")
	}
	s.socket = conn
	s.mu.Unlock()
	s.tomb.Go(func() error {
		defer func() {
			s.mu.Lock()
			if s.socket == conn {
				s.socket = nil
			}
			s.awaitingAckSince = time.Time{}
			s.mu.Unlock()
			_ = conn.Close()
		}()
		return s.push(conn)
	})
	return nil
}

// push writes one frame at a time, each followed by a blocking wait for the
// client's "OK" before the next frame goes out.
func (s *session) push(conn *websocket.Conn) error {
	for {
		select {
		case <-s.tomb.Dying():
			return tomb.ErrDying
		case <-s.queueWake:
		}
		for {
			ev, ok := s.dequeue(time.Now())
			if !ok {
				break
			}
			if err := conn.WriteJSON(ev.render()); err != nil {
				logger.Debugf("session %q: event write failed: %v", s.id, err)
				return nil
			}
			s.mu.Lock()
			s.awaitingAckSince = time.Now()
			s.mu.Unlock()
			_, msg, err := conn.ReadMessage()
			s.mu.Lock()
			s.awaitingAckSince = time.Time{}
			if err == nil && bytes.Equal(bytes.TrimSpace(msg), ackText) {
				s.lastActivity = time.Now()
				s.mu.Unlock()
				continue
			}
			s.mu.Unlock()
			if err != nil {
				logger.Debugf("session %q: ack read failed: %v", s.id, err)
			} else {
				logger.Warningf("session %q: unexpected ack %q", s.id, msg)
			}
			return nil
		}
	}
}

// render materialises the wire frame; variable-value frames are built late
// so coalescing can keep rewriting the queued map.
func (ev queuedEvent) render() interface{} {
	if ev.frame != nil {
		return ev.frame
	}
	frame := params.VariableValuesEventFrame{Event: ev.kind}
	for _, key := range ev.order {
		v := ev.values[key]
		if ev.refsOnly {
			frame.Variables = append(frame.Variables, v.Variable)
		} else {
			frame.Values = append(frame.Values, v)
		}
	}
	return frame
}

// subscription helpers, called from the dispatch handlers.

func (s *session) enableVarValues(options params.SubscriptionOptions, variables []object.VariableRef, roots []object.ObjectRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.varValues.enabled = true
	s.varValues.options = options
	for _, v := range variables {
		s.varValues.variables.Add(v.String())
	}
	for _, r := range roots {
		s.varValues.roots.Add(r.String())
	}
}

func (s *session) enableVarHistory(variables []object.VariableRef, roots []object.ObjectRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.varHistory.enabled = true
	for _, v := range variables {
		s.varHistory.variables.Add(v.String())
	}
	for _, r := range roots {
		s.varHistory.roots.Add(r.String())
	}
}

func (s *session) enableConfigChanges(objects []object.ObjectRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range objects {
		s.configObjs.Add(o.String())
	}
}

func (s *session) enableAlarms(min eventing.Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarms = true
	s.alarmsMin = min
}

func (s *session) disableAlarms() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarms = false
}

func (s *session) disableChangeEvents(values, history, configChanges bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if values {
		s.varValues = newVarSubscription()
	}
	if history {
		s.varHistory = newVarSubscription()
	}
	if configChanges {
		s.configObjs = set.NewStrings()
	}
}
