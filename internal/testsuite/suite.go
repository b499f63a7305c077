// Package testsuite provides the testify suite base every flowbridge
// package test builds on.
package testsuite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// Suite wraps testify's suite with a ready-made background context.
type Suite struct {
	suite.Suite
	Ctx context.Context
}

// SetupTest is called before each test in the suite.
func (s *Suite) SetupTest() {
	s.Ctx = context.Background()
}

// Assert accesses the suite's assertions directly.
func (s *Suite) Assert() *assert.Assertions {
	return s.Assertions
}

// Run runs a suite from a standard Test* function.
func Run(t *testing.T, s suite.TestingSuite) {
	suite.Run(t, s)
}
