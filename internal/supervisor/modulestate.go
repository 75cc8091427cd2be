// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package supervisor

import (
	"sync"
	"sync/atomic"

	"github.com/d-pohl/Mediator.Net/config"
	"github.com/d-pohl/Mediator.Net/core/module"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/internal/varstore"
)

// State is the lifecycle state of one hosted module. Transitions are
// monotonic except for the restart path, which leads from Running back to
// Created.
type State string

const (
	StateCreated           State = "Created"
	StateInitComplete      State = "InitComplete"
	StateInitError         State = "InitError"
	StateRunning           State = "Running"
	StateShutdownStarted   State = "ShutdownStarted"
	StateShutdownCompleted State = "ShutdownCompleted"
)

// snapshot is the supervisor's view of a module's object tree, refreshed
// after init and after configuration changes. It is immutable once built.
type snapshot struct {
	objects   []object.ObjectInfo
	byRef     map[object.ObjectRef]object.ObjectInfo
	children  map[object.ObjectRef][]object.ObjectRef
	root      *object.ObjectRef
	variables map[object.VariableRef]object.Variable
}

func newSnapshot(infos []object.ObjectInfo) *snapshot {
	s := &snapshot{
		objects:   infos,
		byRef:     make(map[object.ObjectRef]object.ObjectInfo, len(infos)),
		children:  make(map[object.ObjectRef][]object.ObjectRef),
		variables: make(map[object.VariableRef]object.Variable),
	}
	for _, info := range infos {
		s.byRef[info.ID] = info
		if info.Parent == nil {
			if s.root == nil {
				root := info.ID
				s.root = &root
			}
		} else {
			s.children[*info.Parent] = append(s.children[*info.Parent], info.ID)
		}
		for _, v := range info.Variables {
			s.variables[object.VariableRef{Object: info.ID, Name: v.Name}] = v
		}
	}
	return s
}

// subtree lists root and every descendant, depth first.
func (s *snapshot) subtree(root object.ObjectRef) []object.ObjectRef {
	if _, ok := s.byRef[root]; !ok {
		return nil
	}
	out := []object.ObjectRef{root}
	for i := 0; i < len(out); i++ {
		out = append(out, s.children[out[i]]...)
	}
	return out
}

// moduleState pairs one module's configuration with its runtime state. The
// supervisor owns the instance; everything mutable is guarded by mu except
// the shutdown flag, which the run goroutine polls.
type moduleState struct {
	cfg     config.Module
	factory module.Factory
	store   *varstore.Store

	shutdownFlag atomic.Bool
	isRestarting atomic.Bool

	mu           sync.Mutex
	state        State
	instance     module.Module
	lastError    string
	restartCount int
	runDone      chan struct{}
	loaded       bool
	snap         *snapshot
}

func (m *moduleState) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *moduleState) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *moduleState) setError(s State, err error) {
	m.mu.Lock()
	m.state = s
	m.lastError = err.Error()
	m.mu.Unlock()
}

func (m *moduleState) Instance() module.Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instance
}

func (m *moduleState) Snapshot() *snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return newSnapshot(nil)
	}
	return m.snap
}

func (m *moduleState) setSnapshot(s *snapshot) {
	m.mu.Lock()
	m.snap = s
	m.mu.Unlock()
}

// isShutdown is the predicate handed to Module.Run.
func (m *moduleState) isShutdown() bool {
	return m.shutdownFlag.Load()
}

// beginRestart coalesces overlapping restart requests.
func (m *moduleState) beginRestart() bool {
	return m.isRestarting.CompareAndSwap(false, true)
}

func (m *moduleState) endRestart() {
	m.isRestarting.Store(false)
}
