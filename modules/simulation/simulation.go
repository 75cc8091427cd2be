// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

// Package simulation provides a signal-generator module: a sine wave, a
// cycle counter and a writable setpoint, published on every cycle. It is the
// reference implementation for driver authors and gives integration tests a
// module with real traffic.
package simulation

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/schema"

	"github.com/d-pohl/Mediator.Net/core/module"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
)

var logger = loggo.GetLogger("mediator.module.simulation")

func init() {
	module.Register("Simulation", New, "Mediator.Simulation")
}

// rootObjectID is the local id of the module's only object.
const rootObjectID = "Root"

const (
	varSine     = "Sine"
	varCounter  = "Counter"
	varSetpoint = "Setpoint"
)

// Config values arrive as XML attribute text, so Amplitude is checked as a
// string and parsed below; TimeDuration handles text directly.
var configChecker = schema.FieldMap(schema.Fields{
	"Period":    schema.TimeDuration(),
	"Amplitude": schema.String(),
}, schema.Defaults{
	"Period":    "1s",
	"Amplitude": "10",
})

// Simulation is the module implementation. All mutable state is owned by the
// Base pump goroutine; the mutex only covers what ReadVariables touches from
// sync reads.
type Simulation struct {
	module.Base

	moduleID string
	backend  module.Backend
	clk      clock.Clock

	period    time.Duration
	amplitude float64
	started   time.Time

	mu       sync.Mutex
	counter  int64
	setpoint float64
}

// New builds a fresh instance. Registered as "Simulation".
func New() module.Module {
	return &Simulation{clk: clock.WallClock}
}

// NewWithClock builds an instance on the given clock, for tests.
func NewWithClock(clk clock.Clock) module.Module {
	return &Simulation{clk: clk}
}

// Init implements module.Module.
func (m *Simulation) Init(ctx context.Context, init module.InitContext) error {
	m.moduleID = init.ModuleID
	m.backend = init.Backend

	coerced, err := configChecker.Coerce(object.NamedValues(init.Config).Map(), nil)
	if err != nil {
		return errors.Annotate(err, "simulation config")
	}
	cfg := coerced.(map[string]interface{})
	m.period = cfg["Period"].(time.Duration)
	m.amplitude, err = strconv.ParseFloat(cfg["Amplitude"].(string), 64)
	if err != nil {
		return errors.NotValidf("amplitude %q", cfg["Amplitude"])
	}
	if m.period <= 0 {
		return errors.NotValidf("period %v", m.period)
	}
	m.started = m.clk.Now()
	if init.RestartCount > 0 {
		logger.Infof("module %q: restart %d", m.moduleID, init.RestartCount)
	}
	m.Setup(m.clk, m.period, m.onCycle)
	return nil
}

func (m *Simulation) rootRef() object.ObjectRef {
	return object.MakeObjectRef(m.moduleID, rootObjectID)
}

func (m *Simulation) varRef(name string) object.VariableRef {
	return object.VariableRef{Object: m.rootRef(), Name: name}
}

// onCycle publishes the next samples. It runs on the pump goroutine.
func (m *Simulation) onCycle(now vtq.Timestamp) {
	m.mu.Lock()
	m.counter++
	counter := m.counter
	m.mu.Unlock()
	m.backend.NotifyVariableValuesChanged([]object.VariableValue{
		{Variable: m.varRef(varSine), Value: vtq.Make(m.sample(now), now, vtq.Good)},
		{Variable: m.varRef(varCounter), Value: vtq.Make(vtq.IntValue(counter), now, vtq.Good)},
	})
}

// sample computes the sine value at time t.
func (m *Simulation) sample(t vtq.Timestamp) vtq.Value {
	elapsed := t.Time().Sub(m.started)
	phase := float64(elapsed) / float64(10*m.period) * 2 * math.Pi
	return vtq.FloatValue(m.amplitude * math.Sin(phase))
}

// AllObjects implements module.Module.
func (m *Simulation) AllObjects() []object.ObjectInfo {
	return []object.ObjectInfo{{
		ID:        m.rootRef(),
		Name:      "Simulation",
		ClassName: "Simulation.Root",
		Variables: []object.Variable{{
			Name:    varSine,
			Type:    object.TypeFloat64,
			History: object.HistorySettings{Mode: object.HistoryComplete},
		}, {
			Name:    varCounter,
			Type:    object.TypeInt64,
			History: object.HistorySettings{Mode: object.HistoryComplete},
		}, {
			Name:         varSetpoint,
			Type:         object.TypeFloat64,
			Writable:     true,
			DefaultValue: vtq.FloatValue(0),
		}},
	}}
}

// MetaInfo implements module.Module.
func (m *Simulation) MetaInfo() object.MetaInfo {
	return object.MetaInfo{
		Classes: []object.ClassInfo{{
			FullName: "Simulation.Root",
			Visible:  true,
			Members: []object.MemberInfo{
				{Name: "Period", Type: string(object.TypeString), Dimension: 1},
				{Name: "Amplitude", Type: string(object.TypeFloat64), Dimension: 1},
				{Name: "Mode", Type: string(object.TypeString), Dimension: 1},
			},
		}},
	}
}

// ReadVariables implements module.Module: values are computed on demand
// rather than replayed from the store.
func (m *Simulation) ReadVariables(ctx context.Context, _ object.Origin, refs []object.VariableRef) ([]vtq.VTQ, error) {
	out := make([]vtq.VTQ, len(refs))
	err := m.RunSync(ctx, func() error {
		now := vtq.Now(m.clk)
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, ref := range refs {
			switch {
			case ref == m.varRef(varSine):
				out[i] = vtq.Make(m.sample(now), now, vtq.Good)
			case ref == m.varRef(varCounter):
				out[i] = vtq.Make(vtq.IntValue(m.counter), now, vtq.Good)
			case ref == m.varRef(varSetpoint):
				out[i] = vtq.Make(vtq.FloatValue(m.setpoint), now, vtq.Good)
			default:
				return errors.NotFoundf("variable %q", ref)
			}
		}
		return nil
	})
	return out, errors.Trace(err)
}

// WriteVariables implements module.Module: only the setpoint is writable.
func (m *Simulation) WriteVariables(ctx context.Context, _ object.Origin, values []object.VariableValue) ([]module.WriteResult, error) {
	results := make([]module.WriteResult, len(values))
	err := m.RunSync(ctx, func() error {
		var accepted []object.VariableValue
		for i, v := range values {
			results[i] = module.WriteResult{Variable: v.Variable}
			if v.Variable != m.varRef(varSetpoint) {
				results[i].Error = "variable is not writable"
				continue
			}
			f, err := v.Value.V.Float64()
			if err != nil {
				results[i].Error = "value is not a number"
				continue
			}
			m.mu.Lock()
			m.setpoint = f
			m.mu.Unlock()
			accepted = append(accepted, v)
		}
		if len(accepted) > 0 {
			m.backend.NotifyVariableValuesChanged(accepted)
		}
		return nil
	})
	return results, errors.Trace(err)
}

// MemberValues implements module.Module for the configuration members.
func (m *Simulation) MemberValues(ctx context.Context, members []object.MemberRef) ([]object.MemberValue, error) {
	out := make([]object.MemberValue, len(members))
	err := m.RunSync(ctx, func() error {
		for i, member := range members {
			if member.Object != m.rootRef() {
				return errors.NotFoundf("object %q", member.Object)
			}
			switch member.Name {
			case "Period":
				out[i] = object.MemberValue{Member: member, Value: vtq.StringValue(m.period.String())}
			case "Amplitude":
				out[i] = object.MemberValue{Member: member, Value: vtq.FloatValue(m.amplitude)}
			default:
				return errors.NotFoundf("member %q", member)
			}
		}
		return nil
	})
	return out, errors.Trace(err)
}

// CallMethod implements module.Module. "reset" zeroes the counter.
func (m *Simulation) CallMethod(ctx context.Context, _ object.Origin, method string, _ []object.NamedValue) (vtq.Value, error) {
	if method != "reset" {
		return "", errors.NotFoundf("method %q", method)
	}
	err := m.RunSync(ctx, func() error {
		m.mu.Lock()
		m.counter = 0
		m.mu.Unlock()
		m.backend.NotifyVariableValuesChanged([]object.VariableValue{{
			Variable: m.varRef(varCounter),
			Value:    vtq.Make(vtq.IntValue(0), m.backend.Now(), vtq.Good),
		}})
		return nil
	})
	if err != nil {
		return "", errors.Trace(err)
	}
	return vtq.BoolValue(true), nil
}

// BrowseMember implements module.Module for the Mode member.
func (m *Simulation) BrowseMember(_ context.Context, member object.MemberRef) ([]string, error) {
	if member.Object == m.rootRef() && member.Name == "Mode" {
		return []string{"Sine", "Counter"}, nil
	}
	return nil, nil
}
