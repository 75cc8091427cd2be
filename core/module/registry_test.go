// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package module_test

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/d-pohl/Mediator.Net/core/module"
)

type RegistrySuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&RegistrySuite{})

type nullModule struct {
	module.Base
	id string
}

func (m *nullModule) Init(ctx context.Context, init module.InitContext) error {
	m.id = init.ModuleID
	return nil
}

func (*RegistrySuite) TestRegisterAndNew(c *gc.C) {
	module.Register("registry-test-a", func() module.Module { return &nullModule{} })

	m, err := module.NewModule("registry-test-a")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(m, gc.NotNil)

	// Every call builds a fresh instance.
	m2, err := module.NewModule("registry-test-a")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(m, gc.Not(gc.Equals), m2)
}

func (*RegistrySuite) TestAlias(c *gc.C) {
	module.Register("registry-test-b", func() module.Module { return &nullModule{} }, "Vendor.registry-test-b")

	m, err := module.NewModule("Vendor.registry-test-b")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(m, gc.NotNil)
}

func (*RegistrySuite) TestUnknown(c *gc.C) {
	_, err := module.NewModule("registry-test-unknown")
	c.Assert(err, jc.ErrorIs, errors.NotFound)
	c.Assert(err, gc.ErrorMatches, `no registered module implementation for "registry-test-unknown"`)
}

func (*RegistrySuite) TestDuplicatePanics(c *gc.C) {
	module.Register("registry-test-c", func() module.Module { return &nullModule{} })
	c.Assert(func() {
		module.Register("registry-test-c", func() module.Module { return &nullModule{} })
	}, gc.PanicMatches, `mediator: duplicate module implementation "registry-test-c"`)
}

func (*RegistrySuite) TestRegisteredImplementationsSorted(c *gc.C) {
	module.Register("registry-test-z", func() module.Module { return &nullModule{} })
	module.Register("registry-test-m", func() module.Module { return &nullModule{} })

	names := module.RegisteredImplementations()
	seen := make(map[string]int)
	for i, n := range names {
		seen[n] = i
	}
	c.Assert(seen["registry-test-m"] < seen["registry-test-z"], jc.IsTrue)
}
