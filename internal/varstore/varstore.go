// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

// Package varstore keeps the last accepted value of every variable of one
// module, with a persistent snapshot on disk so values survive restarts.
package varstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/utils/v4"

	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
)

var logger = loggo.GetLogger("mediator.varstore")

// Previous reports the outcome of one entry of an Update batch: the value
// that was current before the update, and why the entry was not applied, if
// it was not.
type Previous struct {
	Variable object.VariableRef
	Value    vtq.VTQ
	// Rejected is set when the update carried a strictly older timestamp
	// than the current value and the store rejects those.
	Rejected bool
	// Missing is set when the variable is not declared in the store.
	Missing bool
}

// Store holds the current values of one module's variables. All methods are
// safe for concurrent use.
type Store struct {
	moduleID    string
	path        string
	rejectOlder bool

	mu     sync.RWMutex
	values map[object.VariableRef]vtq.VTQ
	dirty  bool
}

// New builds a store persisting to path. With rejectOlder set, updates whose
// timestamp is strictly older than the current value are rejected.
func New(moduleID, path string, rejectOlder bool) *Store {
	return &Store{
		moduleID:    moduleID,
		path:        path,
		rejectOlder: rejectOlder,
		values:      make(map[object.VariableRef]vtq.VTQ),
	}
}

// Load reads the snapshot file. A missing file is an empty store. The
// snapshot is read line by line and a malformed tail is tolerated, so a
// crash during flush never prevents startup.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Annotatef(err, "reading variables file for module %q", s.moduleID)
	}
	values := make(map[object.VariableRef]vtq.VTQ)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lines, skipped := 0, 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry object.VariableValue
		if err := json.Unmarshal(line, &entry); err != nil {
			skipped++
			continue
		}
		values[entry.Variable] = entry.Value
		lines++
	}
	if skipped > 0 {
		logger.Warningf("module %q: variables file %q: kept %d entries, skipped %d malformed lines",
			s.moduleID, s.path, lines, skipped)
	}
	s.mu.Lock()
	s.values = values
	s.dirty = false
	s.mu.Unlock()
	return nil
}

// Sync reconciles the store with the declared objects: new variables are
// seeded with their default value at time now, undeclared ones are dropped,
// existing ones keep their value.
func (s *Store) Sync(infos []object.ObjectInfo, now vtq.Timestamp) {
	declared := make(map[object.VariableRef]object.Variable)
	for _, info := range infos {
		for _, v := range info.Variables {
			declared[object.VariableRef{Object: info.ID, Name: v.Name}] = v
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ref := range s.values {
		if _, ok := declared[ref]; !ok {
			delete(s.values, ref)
			s.dirty = true
		}
	}
	for ref, v := range declared {
		if _, ok := s.values[ref]; !ok {
			s.values[ref] = v.DefaultVTQ(now)
			s.dirty = true
		}
	}
}

// Update applies a batch of value updates in order and returns one Previous
// per entry, in input order.
func (s *Store) Update(values []object.VariableValue) []Previous {
	out := make([]Previous, len(values))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range values {
		prev, ok := s.values[v.Variable]
		out[i] = Previous{Variable: v.Variable, Value: prev}
		if !ok {
			out[i].Missing = true
			continue
		}
		if s.rejectOlder && v.Value.T.Before(prev.T) {
			out[i].Rejected = true
			continue
		}
		s.values[v.Variable] = v.Value
		s.dirty = true
	}
	return out
}

// Get returns the current value of one variable.
func (s *Store) Get(ref object.VariableRef) (vtq.VTQ, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[ref]
	if !ok {
		return vtq.VTQ{}, errors.NotFoundf("variable %q", ref)
	}
	return v, nil
}

// GetAll returns every current value, ordered by reference for determinism.
func (s *Store) GetAll() []object.VariableValue {
	s.mu.RLock()
	out := make([]object.VariableValue, 0, len(s.values))
	for ref, v := range s.values {
		out = append(out, object.VariableValue{Variable: ref, Value: v})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Variable.String() < out[j].Variable.String()
	})
	return out
}

// Len returns the number of stored variables.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Flush writes the snapshot if anything changed since the last flush. The
// snapshot is replaced atomically.
func (s *Store) Flush() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	entries := make([]object.VariableValue, 0, len(s.values))
	for ref, v := range s.values {
		entries = append(entries, object.VariableValue{Variable: ref, Value: v})
	}
	s.dirty = false
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Variable.String() < entries[j].Variable.String()
	})
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return errors.Annotatef(err, "encoding variable %q", e.Variable)
		}
	}
	if err := utils.AtomicWriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return errors.Annotatef(err, "writing variables file for module %q", s.moduleID)
	}
	return nil
}
