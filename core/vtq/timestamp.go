// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package vtq

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
)

// Timestamp is a point in time with millisecond resolution, counted from the
// Unix epoch in UTC. The zero value is the Empty sentinel, meaning "no
// timestamp". Timestamps are totally ordered by their integer value.
type Timestamp int64

const (
	// Empty marks the absence of a timestamp.
	Empty Timestamp = 0

	// Max is the largest representable timestamp,
	// 9999-12-31T23:59:59.999Z. Open-ended interval queries use it as
	// their upper bound.
	Max Timestamp = 253402300799999
)

// timeLayout is the wire form: ISO 8601 with fixed millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// TimestampFromTime converts a time.Time, truncating to milliseconds.
// The zero time maps to Empty.
func TimestampFromTime(t time.Time) Timestamp {
	if t.IsZero() {
		return Empty
	}
	return Timestamp(t.UnixMilli())
}

// TimestampFromMillis converts a Unix epoch millisecond count.
func TimestampFromMillis(ms int64) Timestamp {
	return Timestamp(ms)
}

// Now reads the given clock with millisecond resolution.
func Now(clk clock.Clock) Timestamp {
	return TimestampFromTime(clk.Now())
}

// ParseTimestamp parses the ISO 8601 wire form. The empty string maps to
// Empty.
func ParseTimestamp(s string) (Timestamp, error) {
	if s == "" {
		return Empty, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Empty, errors.NotValidf("timestamp %q", s)
	}
	return TimestampFromTime(t), nil
}

// Millis returns the raw epoch millisecond count.
func (t Timestamp) Millis() int64 {
	return int64(t)
}

// Time converts back to a time.Time in UTC. Empty maps to the zero time.
func (t Timestamp) Time() time.Time {
	if t == Empty {
		return time.Time{}
	}
	return time.UnixMilli(int64(t)).UTC()
}

// IsEmpty reports whether t is the Empty sentinel.
func (t Timestamp) IsEmpty() bool {
	return t == Empty
}

// Before reports whether t is strictly earlier than other.
func (t Timestamp) Before(other Timestamp) bool {
	return t < other
}

// After reports whether t is strictly later than other.
func (t Timestamp) After(other Timestamp) bool {
	return t > other
}

// Cmp returns -1, 0 or 1 ordering t against other.
func (t Timestamp) Cmp(other Timestamp) int {
	switch {
	case t < other:
		return -1
	case t > other:
		return 1
	}
	return 0
}

// Add shifts the timestamp by d, saturating at the sentinels. Empty and Max
// are fixed points.
func (t Timestamp) Add(d time.Duration) Timestamp {
	if t == Empty || t == Max {
		return t
	}
	res := int64(t) + d.Milliseconds()
	if res < int64(Empty) {
		return Empty
	}
	if res > int64(Max) {
		return Max
	}
	return Timestamp(res)
}

// Sub returns the duration from other to t.
func (t Timestamp) Sub(other Timestamp) time.Duration {
	return time.Duration(int64(t)-int64(other)) * time.Millisecond
}

// String renders the ISO 8601 wire form. Empty renders as the empty string.
func (t Timestamp) String() string {
	if t == Empty {
		return ""
	}
	return t.Time().Format(timeLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (t Timestamp) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Timestamp) UnmarshalText(data []byte) error {
	parsed, err := ParseTimestamp(string(data))
	if err != nil {
		return errors.Trace(err)
	}
	*t = parsed
	return nil
}
