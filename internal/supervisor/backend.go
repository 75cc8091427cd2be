// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package supervisor

import (
	"github.com/juju/errors"

	"github.com/d-pohl/Mediator.Net/core/eventing"
	"github.com/d-pohl/Mediator.Net/core/module"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
)

// backend is the one-way handle a module gets into the core. Notification
// calls are posted onto the supervisor's serialised loop, preserving the
// order they were made in; reads go straight to the thread-safe stores.
type backend struct {
	s *Supervisor
	m *moduleState
}

var _ module.Backend = (*backend)(nil)

// NotifyVariableValuesChanged implements module.Backend.
func (b *backend) NotifyVariableValuesChanged(values []object.VariableValue) {
	if len(values) == 0 {
		return
	}
	b.s.postNotification(func() {
		b.s.handleVariableValues(b.m, values)
	})
}

// NotifyConfigChanged implements module.Backend.
func (b *backend) NotifyConfigChanged(objects []object.ObjectRef) {
	b.s.postNotification(func() {
		b.s.handleConfigChanged(b.m, objects)
	})
}

// NotifyAlarmOrEvent implements module.Backend.
func (b *backend) NotifyAlarmOrEvent(ev eventing.AlarmOrEvent) {
	b.s.postNotification(func() {
		b.s.handleAlarmOrEvent(b.m, ev)
	})
}

// ReadVariables implements module.Backend: a loopback read of current
// values, including other modules' variables.
func (b *backend) ReadVariables(refs []object.VariableRef) ([]vtq.VTQ, error) {
	out := make([]vtq.VTQ, len(refs))
	for i, ref := range refs {
		m, ok := b.s.byID[ref.Object.Module]
		if !ok {
			return nil, errors.NotFoundf("module %q", ref.Object.Module)
		}
		v, err := m.store.Get(ref)
		if err != nil {
			return nil, errors.Trace(err)
		}
		out[i] = v
	}
	return out, nil
}

// Now implements module.Backend.
func (b *backend) Now() vtq.Timestamp {
	return vtq.Now(b.s.config.Clock)
}
