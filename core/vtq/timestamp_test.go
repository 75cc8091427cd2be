// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package vtq_test

import (
	"encoding/json"
	"time"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/d-pohl/Mediator.Net/core/vtq"
)

type TimestampSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&TimestampSuite{})

func (*TimestampSuite) TestFromTimeTruncatesToMillis(c *gc.C) {
	t := time.Date(2021, 4, 27, 13, 45, 30, 123_456_789, time.UTC)
	ts := vtq.TimestampFromTime(t)
	c.Assert(ts.Millis(), gc.Equals, t.UnixMilli())
	c.Assert(ts.Time(), gc.Equals, time.Date(2021, 4, 27, 13, 45, 30, 123_000_000, time.UTC))
}

func (*TimestampSuite) TestZeroTimeIsEmpty(c *gc.C) {
	c.Assert(vtq.TimestampFromTime(time.Time{}), gc.Equals, vtq.Empty)
	c.Assert(vtq.Empty.IsEmpty(), jc.IsTrue)
	c.Assert(vtq.Empty.Time().IsZero(), jc.IsTrue)
}

func (*TimestampSuite) TestOrdering(c *gc.C) {
	a := vtq.TimestampFromMillis(1000)
	b := vtq.TimestampFromMillis(2000)
	c.Assert(a.Before(b), jc.IsTrue)
	c.Assert(b.After(a), jc.IsTrue)
	c.Assert(a.Cmp(b), gc.Equals, -1)
	c.Assert(b.Cmp(a), gc.Equals, 1)
	c.Assert(a.Cmp(a), gc.Equals, 0)
	c.Assert(vtq.Empty.Before(a), jc.IsTrue)
	c.Assert(vtq.Max.After(b), jc.IsTrue)
}

func (*TimestampSuite) TestAddSaturates(c *gc.C) {
	c.Assert(vtq.Empty.Add(time.Hour), gc.Equals, vtq.Empty)
	c.Assert(vtq.Max.Add(-time.Hour), gc.Equals, vtq.Max)
	a := vtq.TimestampFromMillis(5000)
	c.Assert(a.Add(time.Second), gc.Equals, vtq.TimestampFromMillis(6000))
	c.Assert(a.Add(-time.Minute), gc.Equals, vtq.Empty)
	c.Assert(vtq.Max.Add(0).Add(time.Hour), gc.Equals, vtq.Max)
}

func (*TimestampSuite) TestSub(c *gc.C) {
	a := vtq.TimestampFromMillis(5000)
	b := vtq.TimestampFromMillis(2000)
	c.Assert(a.Sub(b), gc.Equals, 3*time.Second)
	c.Assert(b.Sub(a), gc.Equals, -3*time.Second)
}

func (*TimestampSuite) TestStringForm(c *gc.C) {
	ts := vtq.TimestampFromTime(time.Date(2021, 4, 27, 13, 45, 30, 120_000_000, time.UTC))
	c.Assert(ts.String(), gc.Equals, "2021-04-27T13:45:30.120Z")
	c.Assert(vtq.Empty.String(), gc.Equals, "")
	c.Assert(vtq.Max.String(), gc.Equals, "9999-12-31T23:59:59.999Z")
}

func (*TimestampSuite) TestParseRoundTrip(c *gc.C) {
	for _, ts := range []vtq.Timestamp{
		vtq.Empty,
		vtq.Max,
		vtq.TimestampFromMillis(1),
		vtq.TimestampFromTime(time.Date(1999, 12, 31, 23, 59, 59, 999_000_000, time.UTC)),
	} {
		parsed, err := vtq.ParseTimestamp(ts.String())
		c.Assert(err, jc.ErrorIsNil)
		c.Check(parsed, gc.Equals, ts)
	}
}

func (*TimestampSuite) TestParseRejectsGarbage(c *gc.C) {
	_, err := vtq.ParseTimestamp("yesterday")
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (*TimestampSuite) TestJSONRoundTrip(c *gc.C) {
	ts := vtq.TimestampFromMillis(1619531130120)
	data, err := json.Marshal(ts)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), gc.Equals, `"2021-04-27T13:45:30.120Z"`)

	var back vtq.Timestamp
	err = json.Unmarshal(data, &back)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(back, gc.Equals, ts)
}

func (*TimestampSuite) TestJSONEmpty(c *gc.C) {
	data, err := json.Marshal(vtq.Empty)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), gc.Equals, `""`)

	var back vtq.Timestamp
	err = json.Unmarshal([]byte(`""`), &back)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(back, gc.Equals, vtq.Empty)
}
