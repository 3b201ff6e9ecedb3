// Package mocks provides test doubles for the google client.
package mocks

import (
	"context"

	google "github.com/sells-group/macro-finder/pkg/google"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// SearchText provides a mock function with given fields: ctx, req
func (_m *MockClient) SearchText(ctx context.Context, req google.SearchTextRequest) (*google.SearchTextResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for SearchText")
	}

	var r0 *google.SearchTextResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, google.SearchTextRequest) (*google.SearchTextResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, google.SearchTextRequest) *google.SearchTextResponse); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*google.SearchTextResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, google.SearchTextRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
