// Package mocks provides test doubles for the llm package.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	llm "github.com/sells-group/topic-enricher/internal/llm"
)

// MockCompleter is a mock type for the Completer interface.
type MockCompleter struct {
	mock.Mock
}

// Complete provides a mock function with given fields: ctx, p
func (_m *MockCompleter) Complete(ctx context.Context, p llm.Prompt) (*llm.Completion, error) {
	ret := _m.Called(ctx, p)

	if len(ret) == 0 {
		panic("no return value specified for Complete")
	}

	var r0 *llm.Completion
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, llm.Prompt) (*llm.Completion, error)); ok {
		return rf(ctx, p)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*llm.Completion)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockCompleter creates a new instance of MockCompleter. It also registers
// a testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockCompleter(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockCompleter {
	m := &MockCompleter{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
