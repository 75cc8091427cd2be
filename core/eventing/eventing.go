// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

// Package eventing defines the alarm/event model and the in-process hub
// topics on which the mediator core publishes change notifications for the
// request handler to fan out to sessions.
package eventing

import (
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
)

// Severity grades an alarm or event.
type Severity string

const (
	SeverityInfo    Severity = "Info"
	SeverityWarning Severity = "Warning"
	SeverityAlarm   Severity = "Alarm"
)

// rank orders severities for minimum-severity filtering.
func (s Severity) rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityAlarm:
		return 2
	}
	return 0
}

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.rank() >= min.rank()
}

// System event types raised by the mediator core itself.
const (
	SysStartup         = "SysStartup"
	InitFailed         = "InitFailed"
	ModuleRestart      = "ModuleRestart"
	ModuleRestartError = "ModuleRestartError"
	ModuleRunError     = "ModuleRunError"
	ShutdownTimeout    = "ShutdownTimeout"
	TimestampWarning   = "TimestampCheckWarning"
)

// AlarmOrEvent is one alarm or event, raised by a module or by the mediator
// core (IsSystem).
type AlarmOrEvent struct {
	Time            vtq.Timestamp      `json:"Time"`
	Severity        Severity           `json:"Severity"`
	ModuleID        string             `json:"ModuleID"`
	IsSystem        bool               `json:"IsSystem,omitempty"`
	Type            string             `json:"Type"`
	Message         string             `json:"Message"`
	Details         string             `json:"Details,omitempty"`
	AffectedObjects []object.ObjectRef `json:"AffectedObjects,omitempty"`
}

// SystemEvent builds a core-raised event.
func SystemEvent(t vtq.Timestamp, severity Severity, moduleID, eventType, message string) AlarmOrEvent {
	return AlarmOrEvent{
		Time:     t,
		Severity: severity,
		ModuleID: moduleID,
		IsSystem: true,
		Type:     eventType,
		Message:  message,
	}
}

// Hub topics. Payload types are listed with each topic.
const (
	// TopicVariableValues carries VariableValuesEvent.
	TopicVariableValues = "variable-values"
	// TopicVariableHistory carries HistoryUpdateEvent.
	TopicVariableHistory = "variable-history"
	// TopicConfigChanged carries ConfigChangedEvent.
	TopicConfigChanged = "config-changed"
	// TopicAlarmOrEvent carries AlarmOrEvent.
	TopicAlarmOrEvent = "alarm-or-event"
)

// VariableValuePrev pairs a current value with the one it replaced, so
// subscribers can filter on change.
type VariableValuePrev struct {
	Variable object.VariableRef `json:"Variable"`
	Value    vtq.VTQ            `json:"Value"`
	Previous vtq.VTQ            `json:"Previous"`
}

// Changed reports whether value or quality differ from the previous update.
func (v VariableValuePrev) Changed() bool {
	return !v.Value.V.Equal(v.Previous.V) || v.Value.Q != v.Previous.Q
}

// VariableValuesEvent reports accepted variable updates of one module.
type VariableValuesEvent struct {
	ModuleID string
	Values   []VariableValuePrev
}

// HistoryChange names a variable whose history changed in [Start, End].
type HistoryChange struct {
	Variable object.VariableRef `json:"Variable"`
	Start    vtq.Timestamp      `json:"Start"`
	End      vtq.Timestamp      `json:"End"`
}

// HistoryUpdateEvent reports a batch of history changes.
type HistoryUpdateEvent struct {
	Changes []HistoryChange
}

// ConfigChangedEvent reports objects whose configuration changed.
type ConfigChangedEvent struct {
	ModuleID string
	Objects  []object.ObjectRef
}
