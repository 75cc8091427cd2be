// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package vtq_test

import (
	"encoding/json"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/d-pohl/Mediator.Net/core/vtq"
)

type ValueSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&ValueSuite{})

func (*ValueSuite) TestConstructors(c *gc.C) {
	c.Assert(vtq.FloatValue(3.5).String(), gc.Equals, "3.5")
	c.Assert(vtq.IntValue(-42).String(), gc.Equals, "-42")
	c.Assert(vtq.BoolValue(true).String(), gc.Equals, "true")
	c.Assert(vtq.StringValue("abc").String(), gc.Equals, `"abc"`)
}

func (*ValueSuite) TestValueOf(c *gc.C) {
	v, err := vtq.ValueOf(map[string]int{"a": 1})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(v.String(), gc.Equals, `{"a":1}`)
}

func (*ValueSuite) TestParseCanonicalises(c *gc.C) {
	v, err := vtq.ParseValue(" { \"a\" : 1 } ")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(v.String(), gc.Equals, `{"a":1}`)

	_, err = vtq.ParseValue("{nope")
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (*ValueSuite) TestAccessors(c *gc.C) {
	f, err := vtq.FloatValue(2.25).Float64()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(f, gc.Equals, 2.25)

	i, err := vtq.IntValue(7).Int64()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(i, gc.Equals, int64(7))

	b, err := vtq.BoolValue(true).Bool()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(b, jc.IsTrue)

	s, err := vtq.StringValue("xy").AsString()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(s, gc.Equals, "xy")
}

func (*ValueSuite) TestAccessorTypeMismatch(c *gc.C) {
	_, err := vtq.StringValue("xy").Float64()
	c.Assert(err, gc.NotNil)
}

func (*ValueSuite) TestEmpty(c *gc.C) {
	var v vtq.Value
	c.Assert(v.IsEmpty(), jc.IsTrue)
	_, err := v.Float64()
	c.Assert(err, jc.ErrorIs, errors.NotFound)

	data, err := json.Marshal(v)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), gc.Equals, "null")
}

func (*ValueSuite) TestJSONRoundTripIdentity(c *gc.C) {
	for _, text := range []string{
		"1.5", "true", `"s"`, `{"a":[1,2,3],"b":null}`, "null",
	} {
		var v vtq.Value
		err := json.Unmarshal([]byte(text), &v)
		c.Assert(err, jc.ErrorIsNil)
		out, err := json.Marshal(v)
		c.Assert(err, jc.ErrorIsNil)
		c.Check(string(out), gc.Equals, text)
	}
}

func (*ValueSuite) TestEquality(c *gc.C) {
	a, err := vtq.ParseValue(`{"x": 1}`)
	c.Assert(err, jc.ErrorIsNil)
	b, err := vtq.ParseValue(`{"x":1}`)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(a.Equal(b), jc.IsTrue)
	c.Assert(a.Equal(vtq.IntValue(1)), jc.IsFalse)
}
