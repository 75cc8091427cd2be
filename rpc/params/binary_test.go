// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package params_test

import (
	"encoding/json"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/d-pohl/Mediator.Net/core/module"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
	"github.com/d-pohl/Mediator.Net/rpc/params"
)

type binarySuite struct{}

var _ = gc.Suite(&binarySuite{})

func sampleValues() []object.VariableValue {
	return []object.VariableValue{{
		Variable: object.MakeVariableRef("IO", "Plant.Pump1", "Pressure"),
		Value:    vtq.Make(vtq.FloatValue(2.5), vtq.TimestampFromMillis(1619531130120), vtq.Good),
	}, {
		Variable: object.MakeVariableRef("CALC", "Avg", "Out"),
		Value:    vtq.Make(vtq.MustValue(map[string]int{"a": 1}), vtq.Empty, vtq.Bad),
	}}
}

func (*binarySuite) TestReadRequestRoundTrip(c *gc.C) {
	req := params.ReadVariablesRequest{
		Session:   "abc",
		TimeoutMS: 1500,
		Variables: []object.VariableRef{
			object.MakeVariableRef("IO", "Pump1", "Pressure"),
			object.MakeVariableRef("IO", "Pump2", "Pressure"),
		},
	}
	data, err := req.MarshalBinary()
	c.Assert(err, jc.ErrorIsNil)

	var back params.ReadVariablesRequest
	err = back.UnmarshalBinary(data)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(back, jc.DeepEquals, req)
}

func (*binarySuite) TestWriteRequestRoundTrip(c *gc.C) {
	req := params.WriteVariablesRequest{Session: "s", Values: sampleValues()}
	data, err := req.MarshalBinary()
	c.Assert(err, jc.ErrorIsNil)

	var back params.WriteVariablesRequest
	err = back.UnmarshalBinary(data)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(back, jc.DeepEquals, req)
}

func (*binarySuite) TestListsRoundTrip(c *gc.C) {
	vals := params.VTQList{
		vtq.Make(vtq.IntValue(1), vtq.TimestampFromMillis(1), vtq.Good),
		vtq.Make(vtq.StringValue("x"), vtq.Max, vtq.Uncertain),
	}
	data, err := vals.MarshalBinary()
	c.Assert(err, jc.ErrorIsNil)
	var backVals params.VTQList
	c.Assert(backVals.UnmarshalBinary(data), jc.ErrorIsNil)
	c.Assert(backVals, jc.DeepEquals, vals)

	vvl := params.VariableValueList(sampleValues())
	data, err = vvl.MarshalBinary()
	c.Assert(err, jc.ErrorIsNil)
	var backVVL params.VariableValueList
	c.Assert(backVVL.UnmarshalBinary(data), jc.ErrorIsNil)
	c.Assert(backVVL, jc.DeepEquals, vvl)

	resp := params.WriteVariablesResponse{Failed: []module.WriteResult{
		{Variable: object.MakeVariableRef("IO", "Pump1", "Setpoint"), Error: "not writable"},
	}}
	data, err = resp.MarshalBinary()
	c.Assert(err, jc.ErrorIsNil)
	var backResp params.WriteVariablesResponse
	c.Assert(backResp.UnmarshalBinary(data), jc.ErrorIsNil)
	c.Assert(backResp, jc.DeepEquals, resp)
}

func (*binarySuite) TestByteStability(c *gc.C) {
	req := params.WriteVariablesRequest{Session: "s", Values: sampleValues()}
	first, err := req.MarshalBinary()
	c.Assert(err, jc.ErrorIsNil)
	second, err := req.MarshalBinary()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(first, jc.DeepEquals, second)

	// Round-tripping and re-encoding is also byte stable.
	var back params.WriteVariablesRequest
	c.Assert(back.UnmarshalBinary(first), jc.ErrorIsNil)
	third, err := back.MarshalBinary()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(third, jc.DeepEquals, first)
}

func (*binarySuite) TestEmptyLists(c *gc.C) {
	var empty params.VTQList
	data, err := empty.MarshalBinary()
	c.Assert(err, jc.ErrorIsNil)
	var back params.VTQList
	c.Assert(back.UnmarshalBinary(data), jc.ErrorIsNil)
	c.Assert(back, gc.HasLen, 0)
}

func (*binarySuite) TestTruncatedFrame(c *gc.C) {
	req := params.ReadVariablesRequest{
		Session:   "abc",
		Variables: []object.VariableRef{object.MakeVariableRef("IO", "Pump1", "Pressure")},
	}
	data, err := req.MarshalBinary()
	c.Assert(err, jc.ErrorIsNil)

	var back params.ReadVariablesRequest
	err = back.UnmarshalBinary(data[:len(data)-3])
	c.Assert(err, gc.NotNil)
}

func (*binarySuite) TestTrailingBytesRejected(c *gc.C) {
	var empty params.VTQList
	data, err := empty.MarshalBinary()
	c.Assert(err, jc.ErrorIsNil)

	var back params.VTQList
	err = back.UnmarshalBinary(append(data, 0xFF))
	c.Assert(err, gc.ErrorMatches, "1 trailing bytes not valid")
}

func (*binarySuite) TestJSONShapeOfLists(c *gc.C) {
	vals := params.VTQList{vtq.Make(vtq.IntValue(1), vtq.TimestampFromMillis(1), vtq.Good)}
	data, err := json.Marshal(vals)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), gc.Equals, `[{"V":1,"T":"1970-01-01T00:00:00.001Z","Q":"Good"}]`)
}
