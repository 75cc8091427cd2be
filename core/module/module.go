// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

// Package module defines the contract between the mediator core and hosted
// modules: the Module interface every implementation satisfies, the Backend
// handle a module uses to talk back to the core, and the registry the
// supervisor resolves implementation names against.
package module

import (
	"context"

	"github.com/d-pohl/Mediator.Net/core/eventing"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
)

// Module is one hosted unit of function, e.g. an IO driver or a calculation
// engine. The supervisor owns the lifecycle: Init, then Run on a dedicated
// goroutine, then shutdown via the isShutdown flag passed to Run, then
// InitAbort to release resources.
//
// The service methods (ReadVariables through BrowseMember) are called by the
// core between Init and shutdown. The runtime serialises calls per module;
// implementations built on Base additionally execute them on the Run
// goroutine, so module code never observes two concurrent calls.
type Module interface {
	// Init prepares the module. It is called once per instance, before
	// Run. A non-nil error marks the module failed and triggers the
	// restart cycle.
	Init(ctx context.Context, init InitContext) error

	// InitAbort releases any resources acquired by Init. It is called
	// after Run has returned during shutdown or restart, and directly
	// after a failed Init.
	InitAbort() error

	// Run executes the module until isShutdown reports true. It is
	// invoked exactly once per instance, on a goroutine owned by the
	// supervisor. Returning while isShutdown is false counts as a module
	// failure.
	Run(isShutdown func() bool)

	// AllObjects lists the objects the module currently hosts.
	AllObjects() []object.ObjectInfo

	// MetaInfo describes the object classes the module can host.
	MetaInfo() object.MetaInfo

	// ReadVariables reads current values from the underlying source,
	// e.g. the device behind a driver.
	ReadVariables(ctx context.Context, origin object.Origin, refs []object.VariableRef) ([]vtq.VTQ, error)

	// WriteVariables sends values towards the underlying sink. The
	// result carries one entry per failed variable.
	WriteVariables(ctx context.Context, origin object.Origin, values []object.VariableValue) ([]WriteResult, error)

	// UpdateConfig applies configuration changes to the module's
	// objects.
	UpdateConfig(ctx context.Context, origin object.Origin, req UpdateConfigRequest) (ConfigResult, error)

	// MemberValues reads the current values of individual configuration
	// members.
	MemberValues(ctx context.Context, members []object.MemberRef) ([]object.MemberValue, error)

	// CallMethod invokes a module-defined method.
	CallMethod(ctx context.Context, origin object.Origin, method string, parameters []object.NamedValue) (vtq.Value, error)

	// BrowseMember lists candidate values for a configuration member,
	// e.g. addresses browsed from a connected device.
	BrowseMember(ctx context.Context, member object.MemberRef) ([]string, error)
}

// InitContext carries everything a module needs to initialise.
type InitContext struct {
	ModuleID     string
	ModuleName   string
	Config       []object.NamedValue
	RestartCount int
	Backend      Backend
}

// Backend is the module's one-way handle into the mediator core. Calls are
// safe from any goroutine and never call back into the module.
type Backend interface {
	// NotifyVariableValuesChanged reports new values of the module's own
	// variables. The core updates the variable store, historises and
	// distributes them. Per-module ordering is preserved.
	NotifyVariableValuesChanged(values []object.VariableValue)

	// NotifyConfigChanged reports objects whose configuration changed
	// outside of an UpdateConfig call.
	NotifyConfigChanged(objects []object.ObjectRef)

	// NotifyAlarmOrEvent raises an alarm or event.
	NotifyAlarmOrEvent(event eventing.AlarmOrEvent)

	// ReadVariables reads current values of other modules' variables
	// from the core's store.
	ReadVariables(refs []object.VariableRef) ([]vtq.VTQ, error)

	// Now reads the mediator clock.
	Now() vtq.Timestamp
}

// WriteResult reports the outcome for one written variable. An empty Error
// means success.
type WriteResult struct {
	Variable object.VariableRef `json:"Variable"`
	Error    string             `json:"Error,omitempty"`
}

// Failed reports whether the write failed.
func (r WriteResult) Failed() bool {
	return r.Error != ""
}

// FailedResults filters results down to the failures.
func FailedResults(results []WriteResult) []WriteResult {
	var out []WriteResult
	for _, r := range results {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// UpdateConfigRequest names the config modifications to apply. Empty values
// in UpdateOrDelete entries denote deletion.
type UpdateConfigRequest struct {
	UpdateOrDeleteObjects []object.ObjectValue
	UpdateOrDeleteMembers []object.MemberValue
	AddArrayElements      []object.AddArrayElement
}

// IsEmpty reports whether there is nothing to apply.
func (r UpdateConfigRequest) IsEmpty() bool {
	return len(r.UpdateOrDeleteObjects) == 0 &&
		len(r.UpdateOrDeleteMembers) == 0 &&
		len(r.AddArrayElements) == 0
}

// ConfigResult reports the objects an UpdateConfig changed.
type ConfigResult struct {
	ChangedObjects []object.ObjectRef
}
