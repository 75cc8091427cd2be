// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

// Package historian persists variable values as time series. Each configured
// history database is owned by one worker that serialises all access to its
// store, amortises writes by batching consecutive appends, and optionally
// lets reads overtake queued writes. The manager routes traffic to the right
// worker by the variable's owning module and publishes history-change
// notifications on the process hub.
package historian

import (
	"context"

	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
	"github.com/d-pohl/Mediator.Net/rpc/params"
)

// Entry is one value to historise, with the declared type of its variable.
// The type only matters the first time a variable is seen, when its channel
// is created.
type Entry struct {
	Variable object.VariableRef
	Type     object.DataType
	Value    vtq.VTQ
}

// ReadRawRequest reads stored values of one variable in the closed interval
// [Start, End]. MaxValues bounds the result size; a negative MaxValues means
// unbounded, zero yields an empty result.
type ReadRawRequest struct {
	Variable  object.VariableRef
	Start     vtq.Timestamp
	End       vtq.Timestamp
	MaxValues int
	Bounding  params.BoundingMethod
	Filter    params.QualityFilter
}

// Store is one history database. Implementations are not required to be
// goroutine safe; the worker serialises all calls. Every method that writes
// is atomic: it either applies completely or not at all.
type Store interface {
	// Open makes the store usable. It is called once, before any other
	// method.
	Open(ctx context.Context) error

	// Close releases the store. No other method is called afterwards.
	Close() error

	// Append inserts a batch of values, creating missing channels in the
	// same transaction. The returned slice has one entry per input value,
	// empty for success, so single bad values do not fail the batch.
	Append(ctx context.Context, entries []Entry, now vtq.Timestamp) ([]string, error)

	// ReadRaw returns stored values in ascending time order.
	ReadRaw(ctx context.Context, req ReadRawRequest) ([]vtq.VTTQ, error)

	// Count counts stored values in a closed interval.
	Count(ctx context.Context, v object.VariableRef, start, end vtq.Timestamp, filter params.QualityFilter) (int64, error)

	// DeleteInterval removes stored values in a closed interval and
	// reports how many rows went away.
	DeleteInterval(ctx context.Context, v object.VariableRef, start, end vtq.Timestamp) (int64, error)

	// LatestTimestampDB returns the latest database insertion timestamp
	// among the values in the closed interval, or Empty for none.
	LatestTimestampDB(ctx context.Context, v object.VariableRef, start, end vtq.Timestamp) (vtq.Timestamp, error)

	// Modify edits the stored values of one variable according to mode.
	Modify(ctx context.Context, v object.VariableRef, mode params.ModifyMode, data []vtq.VTQ, now vtq.Timestamp) error

	// DeleteChannels drops the named variables' channels entirely and
	// reports how many existed.
	DeleteChannels(ctx context.Context, vars []object.VariableRef) (int64, error)
}

// CompressToN downsamples values to at most max entries by uniform index
// selection, keeping the first and last sample. There is no interpolation;
// every returned sample is one of the inputs.
func CompressToN(values []vtq.VTTQ, max int) []vtq.VTTQ {
	if max <= 0 {
		return nil
	}
	n := len(values)
	if n <= max {
		return values
	}
	if max == 1 {
		return values[:1]
	}
	out := make([]vtq.VTTQ, 0, max)
	last := -1
	for k := 0; k < max; k++ {
		// Rounded uniform spacing across [0, n-1].
		i := (k*(n-1) + (max-1)/2) / (max - 1)
		if i == last {
			continue
		}
		out = append(out, values[i])
		last = i
	}
	return out
}
