// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package params

import (
	"github.com/d-pohl/Mediator.Net/core/eventing"
	"github.com/d-pohl/Mediator.Net/core/object"
)

// Event frame discriminators, carried in the Event field of every frame
// pushed over the session websocket. The client answers each frame with the
// literal text "OK".
const (
	EventVariableValueChanged   = "OnVariableValueChanged"
	EventVariableHistoryChanged = "OnVariableHistoryChanged"
	EventConfigChanged          = "OnConfigChanged"
	EventAlarmOrEvents          = "OnAlarmOrEvents"
)

// VariableValuesEventFrame reports value updates. Values carries full
// values; with SendValueWithEvent disabled only Variables is set.
type VariableValuesEventFrame struct {
	Event     string                 `json:"Event"`
	Values    []object.VariableValue `json:"Values,omitempty"`
	Variables []object.VariableRef   `json:"Variables,omitempty"`
}

// HistoryChangedEventFrame reports history changes.
type HistoryChangedEventFrame struct {
	Event   string                   `json:"Event"`
	Changes []eventing.HistoryChange `json:"Changes"`
}

// ConfigChangedEventFrame reports objects with changed configuration.
type ConfigChangedEventFrame struct {
	Event          string             `json:"Event"`
	ChangedObjects []object.ObjectRef `json:"ChangedObjects"`
}

// AlarmOrEventsFrame reports alarms and events.
type AlarmOrEventsFrame struct {
	Event  string                  `json:"Event"`
	Events []eventing.AlarmOrEvent `json:"Events"`
}
