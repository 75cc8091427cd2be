// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package params_test

import (
	"encoding/json"
	"net/http"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/d-pohl/Mediator.Net/rpc/params"
)

type errorSuite struct{}

var _ = gc.Suite(&errorSuite{})

func (*errorSuite) TestErrCode(c *gc.C) {
	var err error
	err = &params.Error{Code: params.CodeTimeout, Message: "too slow"}
	c.Check(params.ErrCode(err), gc.Equals, params.CodeTimeout)

	err = errors.Trace(err)
	c.Check(params.ErrCode(err), gc.Equals, params.CodeTimeout)

	c.Check(params.ErrCode(errors.New("plain")), gc.Equals, "")
}

func (*errorSuite) TestServerErrorCodes(c *gc.C) {
	var tests = []struct {
		err    error
		code   string
		status int
	}{
		{errors.BadRequestf("bad frame"), params.CodeBadRequest, http.StatusBadRequest},
		{errors.NotValidf("session"), params.CodeBadRequest, http.StatusBadRequest},
		{errors.NotFoundf("variable"), params.CodeNotFound, http.StatusBadRequest},
		{errors.NotImplementedf("browse"), params.CodeNotImplemented, http.StatusBadRequest},
		{errors.Unauthorizedf("bad hash"), params.CodeUnauthorized, http.StatusUnauthorized},
		{errors.Forbiddenf("role required"), params.CodeUnauthorized, http.StatusUnauthorized},
		{errors.Timeoutf("module"), params.CodeTimeout, http.StatusRequestTimeout},
		{errors.AlreadyExistsf("row"), params.CodeAlreadyExists, http.StatusConflict},
		{errors.NewNotYetAvailable(nil, "starting"), params.CodeUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), "", http.StatusInternalServerError},
	}
	for i, t := range tests {
		c.Logf("test %d: %v", i, t.err)
		se := params.ServerError(errors.Trace(t.err))
		c.Check(se.Code, gc.Equals, t.code)
		c.Check(params.ErrorStatus(se.Code), gc.Equals, t.status)
	}
}

func (*errorSuite) TestServerErrorNil(c *gc.C) {
	c.Check(params.ServerError(nil), gc.IsNil)
}

func (*errorSuite) TestServerErrorKeepsWireError(c *gc.C) {
	wire := &params.Error{Message: "as is", Code: params.CodeNotFound}
	c.Check(params.ServerError(errors.Trace(wire)), gc.Equals, wire)
}

func (*errorSuite) TestErrorWireForm(c *gc.C) {
	data, err := json.Marshal(params.ServerError(errors.NotFoundf("variable")))
	c.Assert(err, jc.ErrorIsNil)
	var doc map[string]string
	c.Assert(json.Unmarshal(data, &doc), jc.ErrorIsNil)
	c.Check(doc, jc.DeepEquals, map[string]string{
		"error": "variable not found",
		"code":  params.CodeNotFound,
	})

	// Errors without a code omit the code field entirely.
	data, err = json.Marshal(params.ServerError(errors.New("boom")))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Equals, `{"error":"boom"}`)
}

func (*errorSuite) TestTranslateWellKnownError(c *gc.C) {
	var tests = []struct {
		err     params.Error
		errType errors.ConstError
	}{
		{params.Error{Code: params.CodeBadRequest, Message: "a BadRequest error"}, errors.BadRequest},
		{params.Error{Code: params.CodeNotFound, Message: "a NotFound error"}, errors.NotFound},
		{params.Error{Code: params.CodeNotImplemented, Message: "a NotImplemented error"}, errors.NotImplemented},
		{params.Error{Code: params.CodeUnauthorized, Message: "an Unauthorized error"}, errors.Unauthorized},
		{params.Error{Code: params.CodeTimeout, Message: "a Timeout error"}, errors.Timeout},
		{params.Error{Code: params.CodeAlreadyExists, Message: "an AlreadyExists error"}, errors.AlreadyExists},
		{params.Error{Code: params.CodeUnavailable, Message: "a NotYetAvailable error"}, errors.NotYetAvailable},
	}
	for _, v := range tests {
		err := &v.err
		c.Assert(err, gc.Not(jc.ErrorIs), v.errType)
		c.Assert(params.TranslateWellKnownError(err), jc.ErrorIs, v.errType)
	}
}
