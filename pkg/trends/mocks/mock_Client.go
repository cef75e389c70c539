// Package mocks provides test doubles for the trends client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	trends "github.com/sells-group/niche-scout/pkg/trends"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// RelatedQueries provides a mock function with given fields: ctx, keywords
func (_m *MockClient) RelatedQueries(ctx context.Context, keywords []string) (*trends.RelatedResponse, error) {
	ret := _m.Called(ctx, keywords)

	if len(ret) == 0 {
		panic("no return value specified for RelatedQueries")
	}

	var r0 *trends.RelatedResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, []string) (*trends.RelatedResponse, error)); ok {
		return rf(ctx, keywords)
	}
	if rf, ok := ret.Get(0).(func(context.Context, []string) *trends.RelatedResponse); ok {
		r0 = rf(ctx, keywords)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*trends.RelatedResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, []string) error); ok {
		r1 = rf(ctx, keywords)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// InterestOverTime provides a mock function with given fields: ctx, keywords
func (_m *MockClient) InterestOverTime(ctx context.Context, keywords []string) (*trends.InterestResponse, error) {
	ret := _m.Called(ctx, keywords)

	if len(ret) == 0 {
		panic("no return value specified for InterestOverTime")
	}

	var r0 *trends.InterestResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, []string) (*trends.InterestResponse, error)); ok {
		return rf(ctx, keywords)
	}
	if rf, ok := ret.Get(0).(func(context.Context, []string) *trends.InterestResponse); ok {
		r0 = rf(ctx, keywords)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*trends.InterestResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, []string) error); ok {
		r1 = rf(ctx, keywords)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
