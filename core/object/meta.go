// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package object

// MetaInfo describes the object classes a module can host.
type MetaInfo struct {
	Classes []ClassInfo `json:"Classes"`
}

// ClassInfo describes one object class.
type ClassInfo struct {
	FullName string       `json:"FullName"`
	Visible  bool         `json:"Visible"`
	Members  []MemberInfo `json:"Members,omitempty"`
}

// MemberInfo describes one configuration member of a class.
type MemberInfo struct {
	Name      string `json:"Name"`
	Type      string `json:"Type"`
	Dimension int    `json:"Dimension"`
}
