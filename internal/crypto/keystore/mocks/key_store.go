// Package mocks provides mock implementations for testing key store consumers.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
)

// MockKeyStore is a mock implementation of keystore.KeyStore for testing.
type MockKeyStore struct {
	mock.Mock
}

// GetCurrentKey mocks the GetCurrentKey method of KeyStore.
func (m *MockKeyStore) GetCurrentKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.EncryptionKey), args.Error(1)
}

// GetKeyByVersion mocks the GetKeyByVersion method of KeyStore.
func (m *MockKeyStore) GetKeyByVersion(ctx context.Context, version uint) (*cryptoDomain.EncryptionKey, error) {
	args := m.Called(ctx, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.EncryptionKey), args.Error(1)
}

// GetMasterKey mocks the GetMasterKey method of KeyStore.
func (m *MockKeyStore) GetMasterKey(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// GenerateNewKey mocks the GenerateNewKey method of KeyStore.
func (m *MockKeyStore) GenerateNewKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.EncryptionKey), args.Error(1)
}

// ListKeys mocks the ListKeys method of KeyStore.
func (m *MockKeyStore) ListKeys(ctx context.Context) ([]*cryptoDomain.EncryptionKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*cryptoDomain.EncryptionKey), args.Error(1)
}
