// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package object_test

import (
	"encoding/json"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/d-pohl/Mediator.Net/core/object"
)

type RefSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&RefSuite{})

func (*RefSuite) TestObjectRefRoundTrip(c *gc.C) {
	ref := object.MakeObjectRef("IO", "Plant.Pump1")
	c.Assert(ref.String(), gc.Equals, "IO:Plant.Pump1")

	parsed, err := object.ParseObjectRef(ref.String())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(parsed, gc.Equals, ref)
}

func (*RefSuite) TestObjectRefParseErrors(c *gc.C) {
	for _, s := range []string{"", "noseparator", ":id", "mod:", ":"} {
		_, err := object.ParseObjectRef(s)
		c.Check(err, jc.ErrorIs, errors.NotValid, gc.Commentf("input %q", s))
	}
}

func (*RefSuite) TestObjectRefJSONIsTextForm(c *gc.C) {
	ref := object.MakeObjectRef("IO", "Pump1")
	data, err := json.Marshal(ref)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), gc.Equals, `"IO:Pump1"`)

	var back object.ObjectRef
	err = json.Unmarshal(data, &back)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(back, gc.Equals, ref)
}

func (*RefSuite) TestVariableRefRoundTrip(c *gc.C) {
	ref := object.MakeVariableRef("IO", "Plant.Pump1", "Pressure")
	c.Assert(ref.String(), gc.Equals, "IO:Plant.Pump1.Pressure")

	parsed, err := object.ParseVariableRef(ref.String())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(parsed, gc.Equals, ref)
}

func (*RefSuite) TestVariableRefParseErrors(c *gc.C) {
	for _, s := range []string{"", "IO:Pump1", "IO:Pump1.", ".Pressure", "Pump1.Pressure"} {
		_, err := object.ParseVariableRef(s)
		c.Check(err, jc.ErrorIs, errors.NotValid, gc.Commentf("input %q", s))
	}
}

func (*RefSuite) TestVariableLookup(c *gc.C) {
	info := object.ObjectInfo{
		ID:        object.MakeObjectRef("IO", "Pump1"),
		Name:      "Pump1",
		ClassName: "Pump",
		Variables: []object.Variable{
			{Name: "Pressure", Type: object.TypeFloat64, Dimension: 1},
			{Name: "Running", Type: object.TypeBool, Dimension: 1},
		},
	}
	v, err := info.Variable("Running")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(v.Type, gc.Equals, object.TypeBool)

	_, err = info.Variable("Missing")
	c.Assert(err, jc.ErrorIs, errors.NotFound)

	refs := info.VariableRefs()
	c.Assert(refs, gc.HasLen, 2)
	c.Assert(refs[0], gc.Equals, object.MakeVariableRef("IO", "Pump1", "Pressure"))
}

func (*RefSuite) TestDataTypeValidate(c *gc.C) {
	c.Assert(object.TypeFloat64.Validate(), jc.ErrorIsNil)
	c.Assert(object.DataType("Decimal").Validate(), jc.ErrorIs, errors.NotValid)
}

func (*RefSuite) TestHistoryActive(c *gc.C) {
	c.Assert(object.HistorySettings{}.Active(), jc.IsFalse)
	c.Assert(object.HistorySettings{Mode: object.HistoryNone}.Active(), jc.IsFalse)
	c.Assert(object.HistorySettings{Mode: object.HistoryComplete}.Active(), jc.IsTrue)
}

func (*RefSuite) TestNamedValues(c *gc.C) {
	nvs := object.NamedValues{{Name: "Period", Value: "500ms"}, {Name: "Amp", Value: "2"}}
	v, ok := nvs.Get("Amp")
	c.Assert(ok, jc.IsTrue)
	c.Assert(v, gc.Equals, "2")
	_, ok = nvs.Get("Phase")
	c.Assert(ok, jc.IsFalse)
	c.Assert(nvs.Map(), jc.DeepEquals, map[string]interface{}{"Period": "500ms", "Amp": "2"})
}
