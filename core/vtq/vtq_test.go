// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package vtq_test

import (
	"encoding/json"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/d-pohl/Mediator.Net/core/vtq"
)

type VTQSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&VTQSuite{})

func (*VTQSuite) TestJSONShape(c *gc.C) {
	x := vtq.Make(vtq.FloatValue(1.5), vtq.TimestampFromMillis(1619531130120), vtq.Uncertain)
	data, err := json.Marshal(x)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), gc.Equals, `{"V":1.5,"T":"2021-04-27T13:45:30.120Z","Q":"Uncertain"}`)

	var back vtq.VTQ
	err = json.Unmarshal(data, &back)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(back.Equal(x), jc.IsTrue)
}

func (*VTQSuite) TestWithers(c *gc.C) {
	x := vtq.Make(vtq.IntValue(1), vtq.TimestampFromMillis(10), vtq.Good)
	c.Assert(x.WithValue(vtq.IntValue(2)).V, gc.Equals, vtq.IntValue(2))
	c.Assert(x.WithTime(vtq.TimestampFromMillis(20)).T, gc.Equals, vtq.TimestampFromMillis(20))
	c.Assert(x.WithQuality(vtq.Bad).Q, gc.Equals, vtq.Bad)
	// The receiver is unchanged.
	c.Assert(x.Q, gc.Equals, vtq.Good)
}

func (*VTQSuite) TestVTTQ(c *gc.C) {
	x := vtq.Make(vtq.IntValue(1), vtq.TimestampFromMillis(10), vtq.Good)
	tt := x.WithDBTime(vtq.TimestampFromMillis(15))
	c.Assert(tt.TDB, gc.Equals, vtq.TimestampFromMillis(15))
	c.Assert(tt.VTQ(), gc.Equals, x)

	data, err := json.Marshal(tt)
	c.Assert(err, jc.ErrorIsNil)
	var m map[string]interface{}
	err = json.Unmarshal(data, &m)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(m, gc.HasLen, 4)
	c.Assert(m["T_DB"], gc.Equals, "1970-01-01T00:00:00.015Z")
}

func (*VTQSuite) TestQualityParse(c *gc.C) {
	for _, q := range []vtq.Quality{vtq.Good, vtq.Uncertain, vtq.Bad} {
		parsed, err := vtq.ParseQuality(q.String())
		c.Assert(err, jc.ErrorIsNil)
		c.Check(parsed, gc.Equals, q)
	}
	_, err := vtq.ParseQuality("Dubious")
	c.Assert(err, gc.NotNil)
	c.Assert(vtq.Good.IsNotBad(), jc.IsTrue)
	c.Assert(vtq.Uncertain.IsNotBad(), jc.IsTrue)
	c.Assert(vtq.Bad.IsNotBad(), jc.IsFalse)
}
