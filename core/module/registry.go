// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package module

import (
	"fmt"
	"sync"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
)

// Factory builds a fresh module instance. The supervisor calls it once at
// startup and again for every restart, so instances never carry state across
// failures.
type Factory func() Module

type globalFactoryRegistry struct {
	mu sync.Mutex
	// factories maps from implementation name to Factory for each
	// registered module implementation.
	factories map[string]Factory
	// aliases is a map of implementation name aliases.
	aliases map[string]string
}

var globalFactories = &globalFactoryRegistry{
	factories: map[string]Factory{},
	aliases:   map[string]string{},
}

func (r *globalFactoryRegistry) register(f Factory, name string, nameAliases ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" || f == nil {
		return errors.Errorf("empty module factory registration")
	}
	if r.factories[name] != nil || r.aliases[name] != "" {
		return errors.Errorf("duplicate module implementation %q", name)
	}
	r.factories[name] = f
	for _, alias := range nameAliases {
		if r.factories[alias] != nil || r.aliases[alias] != "" {
			return errors.Errorf("duplicate module implementation alias %q", alias)
		}
		r.aliases[alias] = name
	}
	return nil
}

func (r *globalFactoryRegistry) registered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := set.NewStrings()
	for k := range r.factories {
		names.Add(k)
	}
	return names.SortedValues()
}

func (r *globalFactoryRegistry) factory(name string) (Factory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if alias, ok := r.aliases[name]; ok {
		name = alias
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, errors.NewNotFound(
			nil, fmt.Sprintf("no registered module implementation for %q", name),
		)
	}
	return f, nil
}

// Register registers a module implementation under the given name, plus any
// aliases. Module packages call it from init().
//
// Register panics if the name or any alias is registered more than once.
func Register(name string, f Factory, alias ...string) {
	if err := globalFactories.register(f, name, alias...); err != nil {
		panic(fmt.Errorf("mediator: %v", err))
	}
}

// RegisteredImplementations enumerates all registered implementation names,
// sorted.
func RegisteredImplementations() []string {
	return globalFactories.registered()
}

// FactoryFor resolves the named implementation's factory.
func FactoryFor(name string) (Factory, error) {
	f, err := globalFactories.factory(name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return f, nil
}

// NewModule builds a fresh instance of the named implementation.
func NewModule(name string) (Module, error) {
	f, err := globalFactories.factory(name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return f(), nil
}
