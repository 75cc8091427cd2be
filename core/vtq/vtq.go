// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

// Package vtq holds the value primitives every layer of the mediator trades
// in: JSON values, millisecond timestamps, quality grades, and their
// combinations VTQ and VTTQ.
package vtq

// VTQ is a value with the time it was taken and its quality grade.
type VTQ struct {
	V Value     `json:"V"`
	T Timestamp `json:"T"`
	Q Quality   `json:"Q"`
}

// Make builds a VTQ.
func Make(v Value, t Timestamp, q Quality) VTQ {
	return VTQ{V: v, T: t, Q: q}
}

// Equal reports field-wise equality.
func (x VTQ) Equal(other VTQ) bool {
	return x.V.Equal(other.V) && x.T == other.T && x.Q == other.Q
}

// WithValue returns a copy with the value replaced.
func (x VTQ) WithValue(v Value) VTQ {
	x.V = v
	return x
}

// WithTime returns a copy with the timestamp replaced.
func (x VTQ) WithTime(t Timestamp) VTQ {
	x.T = t
	return x
}

// WithQuality returns a copy with the quality replaced.
func (x VTQ) WithQuality(q Quality) VTQ {
	x.Q = q
	return x
}

// VTTQ is a VTQ extended with the time the historian persisted it.
type VTTQ struct {
	V   Value     `json:"V"`
	T   Timestamp `json:"T"`
	TDB Timestamp `json:"T_DB"`
	Q   Quality   `json:"Q"`
}

// WithDBTime lifts a VTQ into a VTTQ.
func (x VTQ) WithDBTime(tdb Timestamp) VTTQ {
	return VTTQ{V: x.V, T: x.T, TDB: tdb, Q: x.Q}
}

// VTQ drops the database timestamp again.
func (x VTTQ) VTQ() VTQ {
	return VTQ{V: x.V, T: x.T, Q: x.Q}
}

// Equal reports field-wise equality.
func (x VTTQ) Equal(other VTTQ) bool {
	return x.V.Equal(other.V) && x.T == other.T && x.TDB == other.TDB && x.Q == other.Q
}
