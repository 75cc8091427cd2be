// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package object

import (
	"github.com/d-pohl/Mediator.Net/core/vtq"
)

// VariableValue pairs a variable reference with a timestamped value.
type VariableValue struct {
	Variable VariableRef `json:"Variable"`
	Value    vtq.VTQ     `json:"Value"`
}

// ObjectValue is the whole configuration of one object as JSON. An empty
// value denotes deletion in update requests.
type ObjectValue struct {
	Object ObjectRef `json:"Object"`
	Value  vtq.Value `json:"Value"`
}

// MemberValue is the value of one configuration member. An empty value
// denotes deletion in update requests.
type MemberValue struct {
	Member MemberRef `json:"Member"`
	Value  vtq.Value `json:"Value"`
}

// AddArrayElement appends one element to an array-valued member.
type AddArrayElement struct {
	Member MemberRef `json:"Member"`
	Value  vtq.Value `json:"Value"`
}

// NamedValue is a free-form name/value pair, used for module configuration
// entries and method call parameters.
type NamedValue struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// NamedValues gives map access over a slice of NamedValue.
type NamedValues []NamedValue

// Get returns the value for name and whether it is present.
func (n NamedValues) Get(name string) (string, bool) {
	for _, nv := range n {
		if nv.Name == name {
			return nv.Value, true
		}
	}
	return "", false
}

// Map converts to a map keyed by name. Later duplicates win.
func (n NamedValues) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(n))
	for _, nv := range n {
		m[nv.Name] = nv.Value
	}
	return m
}

// OriginKind distinguishes who initiated an operation.
type OriginKind string

const (
	OriginUser   OriginKind = "User"
	OriginModule OriginKind = "Module"
)

// Origin identifies the initiator of a write or config change: a logged-in
// user or another module.
type Origin struct {
	Kind OriginKind `json:"Kind"`
	ID   string     `json:"ID"`
}

// Location is a node of the site hierarchy objects may be assigned to.
type Location struct {
	ID       string `json:"ID"`
	Name     string `json:"Name"`
	LongName string `json:"LongName,omitempty"`
	Parent   string `json:"Parent,omitempty"`
}
