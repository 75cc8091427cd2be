// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package vtq

import (
	"github.com/juju/errors"
)

// Quality grades the trustworthiness of a value. The numeric codes are
// stable: they are what the historian persists.
type Quality uint8

const (
	Good      Quality = 0
	Uncertain Quality = 1
	Bad       Quality = 2
)

// ParseQuality parses the wire form of a quality grade.
func ParseQuality(s string) (Quality, error) {
	switch s {
	case "Good":
		return Good, nil
	case "Uncertain":
		return Uncertain, nil
	case "Bad":
		return Bad, nil
	}
	return Bad, errors.NotValidf("quality %q", s)
}

// IsGood reports whether q is Good.
func (q Quality) IsGood() bool {
	return q == Good
}

// IsUncertain reports whether q is Uncertain.
func (q Quality) IsUncertain() bool {
	return q == Uncertain
}

// IsBad reports whether q is Bad.
func (q Quality) IsBad() bool {
	return q == Bad
}

// IsNotBad reports whether q is Good or Uncertain.
func (q Quality) IsNotBad() bool {
	return q != Bad
}

// String renders the wire form.
func (q Quality) String() string {
	switch q {
	case Good:
		return "Good"
	case Uncertain:
		return "Uncertain"
	case Bad:
		return "Bad"
	}
	return "Bad"
}

// MarshalText implements encoding.TextMarshaler.
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *Quality) UnmarshalText(data []byte) error {
	parsed, err := ParseQuality(string(data))
	if err != nil {
		return errors.Trace(err)
	}
	*q = parsed
	return nil
}
