// Package mocks provides test doubles for the keepa client.
package mocks

import (
	"context"

	keepa "github.com/dealcast/dealcast/pkg/keepa"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// LightningDeals provides a mock function with given fields: ctx
func (_m *MockClient) LightningDeals(ctx context.Context) ([]keepa.FlashDeal, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for LightningDeals")
	}

	var r0 []keepa.FlashDeal
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context) ([]keepa.FlashDeal, error)); ok {
		return rf(ctx)
	}
	if rf, ok := ret.Get(0).(func(context.Context) []keepa.FlashDeal); ok {
		r0 = rf(ctx)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]keepa.FlashDeal)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		r1 = rf(ctx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Deals provides a mock function with given fields: ctx, query
func (_m *MockClient) Deals(ctx context.Context, query keepa.DealQuery) ([]keepa.BrowseDeal, error) {
	ret := _m.Called(ctx, query)

	if len(ret) == 0 {
		panic("no return value specified for Deals")
	}

	var r0 []keepa.BrowseDeal
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, keepa.DealQuery) ([]keepa.BrowseDeal, error)); ok {
		return rf(ctx, query)
	}
	if rf, ok := ret.Get(0).(func(context.Context, keepa.DealQuery) []keepa.BrowseDeal); ok {
		r0 = rf(ctx, query)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]keepa.BrowseDeal)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, keepa.DealQuery) error); ok {
		r1 = rf(ctx, query)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Products provides a mock function with given fields: ctx, asins
func (_m *MockClient) Products(ctx context.Context, asins []string) ([]keepa.ProductDetail, error) {
	ret := _m.Called(ctx, asins)

	if len(ret) == 0 {
		panic("no return value specified for Products")
	}

	var r0 []keepa.ProductDetail
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, []string) ([]keepa.ProductDetail, error)); ok {
		return rf(ctx, asins)
	}
	if rf, ok := ret.Get(0).(func(context.Context, []string) []keepa.ProductDetail); ok {
		r0 = rf(ctx, asins)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]keepa.ProductDetail)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, []string) error); ok {
		r1 = rf(ctx, asins)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Token provides a mock function with given fields: ctx
func (_m *MockClient) Token(ctx context.Context) (*keepa.TokenStatus, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Token")
	}

	var r0 *keepa.TokenStatus
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context) (*keepa.TokenStatus, error)); ok {
		return rf(ctx)
	}
	if rf, ok := ret.Get(0).(func(context.Context) *keepa.TokenStatus); ok {
		r0 = rf(ctx)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*keepa.TokenStatus)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		r1 = rf(ctx)
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
