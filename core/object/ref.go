// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

// Package object defines the references and descriptors the mediator uses to
// address module objects, their variables and their configuration members.
package object

import (
	"strings"

	"github.com/juju/errors"
)

// ObjectRef addresses one object inside one module. The text form is
// "module:id". Module IDs must not contain ':'; object IDs may.
type ObjectRef struct {
	Module string
	ID     string
}

// MakeObjectRef builds an ObjectRef from its parts.
func MakeObjectRef(module, id string) ObjectRef {
	return ObjectRef{Module: module, ID: id}
}

// ParseObjectRef parses the text form.
func ParseObjectRef(s string) (ObjectRef, error) {
	i := strings.Index(s, ":")
	if i <= 0 || i == len(s)-1 {
		return ObjectRef{}, errors.NotValidf("object reference %q", s)
	}
	return ObjectRef{Module: s[:i], ID: s[i+1:]}, nil
}

// IsZero reports whether the reference is unset.
func (r ObjectRef) IsZero() bool {
	return r.Module == "" && r.ID == ""
}

// String renders the text form.
func (r ObjectRef) String() string {
	return r.Module + ":" + r.ID
}

// MarshalText implements encoding.TextMarshaler.
func (r ObjectRef) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *ObjectRef) UnmarshalText(data []byte) error {
	parsed, err := ParseObjectRef(string(data))
	if err != nil {
		return errors.Trace(err)
	}
	*r = parsed
	return nil
}

// VariableRef addresses one variable of one object. The text form is
// "module:id.name"; the separator is the last '.', so variable names must
// not contain dots while object IDs may.
type VariableRef struct {
	Object ObjectRef `json:"Object"`
	Name   string    `json:"Name"`
}

// MakeVariableRef builds a VariableRef from its parts.
func MakeVariableRef(module, id, name string) VariableRef {
	return VariableRef{Object: ObjectRef{Module: module, ID: id}, Name: name}
}

// ParseVariableRef parses the text form.
func ParseVariableRef(s string) (VariableRef, error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return VariableRef{}, errors.NotValidf("variable reference %q", s)
	}
	obj, err := ParseObjectRef(s[:i])
	if err != nil {
		return VariableRef{}, errors.Trace(err)
	}
	return VariableRef{Object: obj, Name: s[i+1:]}, nil
}

// String renders the text form.
func (r VariableRef) String() string {
	return r.Object.String() + "." + r.Name
}

// MemberRef addresses one configuration member of one object.
type MemberRef struct {
	Object ObjectRef `json:"Object"`
	Name   string    `json:"Name"`
}

// String renders the text form, same shape as a variable reference.
func (r MemberRef) String() string {
	return r.Object.String() + "." + r.Name
}
