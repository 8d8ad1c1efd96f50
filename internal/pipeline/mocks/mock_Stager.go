// Package mocks provides test doubles for the pipeline package.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	model "github.com/sells-group/topic-enricher/internal/model"
)

// MockStager is a mock type for the Stager interface.
type MockStager struct {
	mock.Mock
}

// Discover provides a mock function with given fields: ctx, sessionID, force
func (_m *MockStager) Discover(ctx context.Context, sessionID string, force bool) (*model.Stage1Result, error) {
	ret := _m.Called(ctx, sessionID, force)

	if len(ret) == 0 {
		panic("no return value specified for Discover")
	}

	var r0 *model.Stage1Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, bool) (*model.Stage1Result, error)); ok {
		return rf(ctx, sessionID, force)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Stage1Result)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// FindWebsites provides a mock function with given fields: ctx, sessionID, force
func (_m *MockStager) FindWebsites(ctx context.Context, sessionID string, force bool) (*model.Stage2Result, error) {
	ret := _m.Called(ctx, sessionID, force)

	if len(ret) == 0 {
		panic("no return value specified for FindWebsites")
	}

	var r0 *model.Stage2Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, bool) (*model.Stage2Result, error)); ok {
		return rf(ctx, sessionID, force)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Stage2Result)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// FindContacts provides a mock function with given fields: ctx, sessionID, force
func (_m *MockStager) FindContacts(ctx context.Context, sessionID string, force bool) (*model.Stage3Result, error) {
	ret := _m.Called(ctx, sessionID, force)

	if len(ret) == 0 {
		panic("no return value specified for FindContacts")
	}

	var r0 *model.Stage3Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, bool) (*model.Stage3Result, error)); ok {
		return rf(ctx, sessionID, force)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Stage3Result)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Validate provides a mock function with given fields: ctx, sessionID, force
func (_m *MockStager) Validate(ctx context.Context, sessionID string, force bool) (*model.Stage4Result, error) {
	ret := _m.Called(ctx, sessionID, force)

	if len(ret) == 0 {
		panic("no return value specified for Validate")
	}

	var r0 *model.Stage4Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, bool) (*model.Stage4Result, error)); ok {
		return rf(ctx, sessionID, force)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Stage4Result)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockStager creates a new instance of MockStager. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockStager(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStager {
	m := &MockStager{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
