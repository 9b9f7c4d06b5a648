package testutil

import (
	"context"

	"github.com/AksharDP/modhub/pkg/objectstore"
	"github.com/stretchr/testify/mock"
)

// MockStore is a testify mock of objectstore.Store. PublicURL is not mocked and
// returns a fixed CDN prefix joined with the key.
type MockStore struct {
	mock.Mock
}

var _ objectstore.Store = (*MockStore)(nil)

func (m *MockStore) PresignPut(ctx context.Context, key string, opts objectstore.PutOptions) (*objectstore.PresignedRequest, error) {
	args := m.Called(ctx, key, opts)
	req, _ := args.Get(0).(*objectstore.PresignedRequest)
	return req, args.Error(1)
}

func (m *MockStore) PresignGet(ctx context.Context, key string, opts objectstore.GetOptions) (*objectstore.PresignedRequest, error) {
	args := m.Called(ctx, key, opts)
	req, _ := args.Get(0).(*objectstore.PresignedRequest)
	return req, args.Error(1)
}

func (m *MockStore) Head(ctx context.Context, key string) (*objectstore.ObjectInfo, error) {
	args := m.Called(ctx, key)
	info, _ := args.Get(0).(*objectstore.ObjectInfo)
	return info, args.Error(1)
}

func (m *MockStore) Sniff(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockStore) PublicURL(key string) string {
	return "https://cdn.modhub.test/" + key
}
