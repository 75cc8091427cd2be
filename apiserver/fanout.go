// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package apiserver

import (
	"github.com/juju/collections/set"

	"github.com/d-pohl/Mediator.Net/core/eventing"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/rpc/params"
)

// The hub handlers below run on pubsub goroutines. Each computes the subset
// of an event that a session subscribed to and appends it to the session's
// outbound queue; the per-session pusher takes it from there.

// ancestorKeys renders an object and its ancestors as subscription keys,
// memoised per event across sessions.
func (s *Server) ancestorKeys(cache map[object.ObjectRef][]string, ref object.ObjectRef) []string {
	keys, ok := cache[ref]
	if ok {
		return keys
	}
	for _, ancestor := range s.config.Core.ObjectAncestors(ref) {
		keys = append(keys, ancestor.String())
	}
	if keys == nil {
		// Unknown object: match on the reference itself only.
		keys = []string{ref.String()}
	}
	cache[ref] = keys
	return keys
}

func anyKeyIn(keys []string, roots set.Strings) bool {
	for _, key := range keys {
		if roots.Contains(key) {
			return true
		}
	}
	return false
}

// matches reports whether a variable falls under a subscription, either
// named explicitly or beneath a subscribed tree root.
func (sub *varSubscription) matches(ref object.VariableRef, ancestors []string) bool {
	if !sub.enabled {
		return false
	}
	if sub.variables.Contains(ref.String()) {
		return true
	}
	return anyKeyIn(ancestors, sub.roots)
}

func (s *Server) onVariableValues(_ string, data interface{}) {
	event, ok := data.(eventing.VariableValuesEvent)
	if !ok || len(event.Values) == 0 {
		return
	}
	cache := make(map[object.ObjectRef][]string)
	now := s.config.Clock.Now()
	s.eachSession(func(sess *session) {
		sess.mu.Lock()
		sub := sess.varValues
		sess.mu.Unlock()
		if !sub.enabled {
			return
		}
		var order []string
		values := make(map[string]object.VariableValue)
		for _, v := range event.Values {
			if !sub.matches(v.Variable, s.ancestorKeys(cache, v.Variable.Object)) {
				continue
			}
			key := v.Variable.String()
			if _, ok := values[key]; !ok {
				order = append(order, key)
			}
			values[key] = object.VariableValue{Variable: v.Variable, Value: v.Value}
		}
		if len(order) == 0 {
			return
		}
		sess.enqueueVarValues(values, order, now, sub.options)
	})
}

func (s *Server) onVariableHistory(_ string, data interface{}) {
	event, ok := data.(eventing.HistoryUpdateEvent)
	if !ok || len(event.Changes) == 0 {
		return
	}
	cache := make(map[object.ObjectRef][]string)
	now := s.config.Clock.Now()
	s.eachSession(func(sess *session) {
		sess.mu.Lock()
		sub := sess.varHistory
		sess.mu.Unlock()
		if !sub.enabled {
			return
		}
		var changes []eventing.HistoryChange
		for _, change := range event.Changes {
			if sub.matches(change.Variable, s.ancestorKeys(cache, change.Variable.Object)) {
				changes = append(changes, change)
			}
		}
		if len(changes) == 0 {
			return
		}
		sess.enqueue(params.EventVariableHistoryChanged, params.HistoryChangedEventFrame{
			Event:   params.EventVariableHistoryChanged,
			Changes: changes,
		}, now)
	})
}

func (s *Server) onConfigChanged(_ string, data interface{}) {
	event, ok := data.(eventing.ConfigChangedEvent)
	if !ok || len(event.Objects) == 0 {
		return
	}
	cache := make(map[object.ObjectRef][]string)
	now := s.config.Clock.Now()
	s.eachSession(func(sess *session) {
		sess.mu.Lock()
		subscribed := sess.configObjs
		sess.mu.Unlock()
		if subscribed.IsEmpty() {
			return
		}
		var changed []object.ObjectRef
		for _, ref := range event.Objects {
			if anyKeyIn(s.ancestorKeys(cache, ref), subscribed) {
				changed = append(changed, ref)
			}
		}
		if len(changed) == 0 {
			return
		}
		sess.enqueue(params.EventConfigChanged, params.ConfigChangedEventFrame{
			Event:          params.EventConfigChanged,
			ChangedObjects: changed,
		}, now)
	})
}

func (s *Server) onAlarmOrEvent(_ string, data interface{}) {
	event, ok := data.(eventing.AlarmOrEvent)
	if !ok {
		return
	}
	now := s.config.Clock.Now()
	s.eachSession(func(sess *session) {
		sess.mu.Lock()
		enabled, min := sess.alarms, sess.alarmsMin
		sess.mu.Unlock()
		if !enabled || !event.Severity.AtLeast(min) {
			return
		}
		sess.enqueue(params.EventAlarmOrEvents, params.AlarmOrEventsFrame{
			Event:  params.EventAlarmOrEvents,
			Events: []eventing.AlarmOrEvent{event},
		}, now)
	})
}
