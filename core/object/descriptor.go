// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package object

import (
	"github.com/juju/errors"

	"github.com/d-pohl/Mediator.Net/core/vtq"
)

// DataType names the declared type of a variable or member.
type DataType string

const (
	TypeBool      DataType = "Bool"
	TypeInt64     DataType = "Int64"
	TypeFloat64   DataType = "Float64"
	TypeString    DataType = "String"
	TypeJSON      DataType = "JSON"
	TypeTimestamp DataType = "Timestamp"
)

// Validate reports whether the data type is one of the known names.
func (t DataType) Validate() error {
	switch t {
	case TypeBool, TypeInt64, TypeFloat64, TypeString, TypeJSON, TypeTimestamp:
		return nil
	}
	return errors.NotValidf("data type %q", string(t))
}

// HistoryMode selects which value updates the historian keeps.
type HistoryMode string

const (
	// HistoryNone keeps nothing.
	HistoryNone HistoryMode = "None"
	// HistoryComplete keeps every update.
	HistoryComplete HistoryMode = "Complete"
	// HistoryValueOrQualityChanged keeps updates whose value or quality
	// differs from the previous one.
	HistoryValueOrQualityChanged HistoryMode = "ValueOrQualityChanged"
)

// HistorySettings configures historisation of one variable.
type HistorySettings struct {
	Mode HistoryMode `json:"Mode"`
}

// Active reports whether any updates are kept at all.
func (h HistorySettings) Active() bool {
	return h.Mode != "" && h.Mode != HistoryNone
}

// Variable describes one variable of an object. Dimension follows the
// convention: 1 is a scalar, 0 a variable-length array, N>1 a fixed-length
// array.
type Variable struct {
	Name         string          `json:"Name"`
	Type         DataType        `json:"Type"`
	Dimension    int             `json:"Dimension"`
	DefaultValue vtq.Value       `json:"DefaultValue,omitempty"`
	Writable     bool            `json:"Writable,omitempty"`
	History      HistorySettings `json:"History"`
}

// DefaultVTQ builds the initial value of the variable at time t.
func (v Variable) DefaultVTQ(t vtq.Timestamp) vtq.VTQ {
	return vtq.Make(v.DefaultValue, t, vtq.Good)
}

// ObjectInfo describes one object of a module: identity, class, place in the
// object tree, and declared variables. Objects form a forest per module via
// Parent.
type ObjectInfo struct {
	ID        ObjectRef  `json:"ID"`
	Name      string     `json:"Name"`
	ClassName string     `json:"ClassName"`
	Parent    *ObjectRef `json:"Parent,omitempty"`
	Location  string     `json:"Location,omitempty"`
	Variables []Variable `json:"Variables,omitempty"`
}

// Variable returns the named variable descriptor.
func (o ObjectInfo) Variable(name string) (Variable, error) {
	for _, v := range o.Variables {
		if v.Name == name {
			return v, nil
		}
	}
	return Variable{}, errors.NotFoundf("variable %q of object %q", name, o.ID)
}

// VariableRefs lists the references of all declared variables.
func (o ObjectInfo) VariableRefs() []VariableRef {
	refs := make([]VariableRef, len(o.Variables))
	for i, v := range o.Variables {
		refs[i] = VariableRef{Object: o.ID, Name: v.Name}
	}
	return refs
}
