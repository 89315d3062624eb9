// Package mocks provides mock implementations for testing key manager consumers.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	cryptoUsecase "github.com/dealdesk/fieldcrypt/internal/crypto/usecase"
)

// MockKeyManager is a mock implementation of KeyManager for testing.
type MockKeyManager struct {
	mock.Mock
}

var _ cryptoUsecase.KeyManager = (*MockKeyManager)(nil)

// GetCurrentKey mocks the GetCurrentKey method of KeyManager.
func (m *MockKeyManager) GetCurrentKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.EncryptionKey), args.Error(1)
}

// GetKeyByVersion mocks the GetKeyByVersion method of KeyManager.
func (m *MockKeyManager) GetKeyByVersion(ctx context.Context, version uint) (*cryptoDomain.EncryptionKey, error) {
	args := m.Called(ctx, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.EncryptionKey), args.Error(1)
}

// GetSearchKey mocks the GetSearchKey method of KeyManager.
func (m *MockKeyManager) GetSearchKey(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// RotateKey mocks the RotateKey method of KeyManager.
func (m *MockKeyManager) RotateKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.EncryptionKey), args.Error(1)
}

// EnsureCurrentKey mocks the EnsureCurrentKey method of KeyManager.
func (m *MockKeyManager) EnsureCurrentKey(ctx context.Context) (*cryptoDomain.EncryptionKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.EncryptionKey), args.Error(1)
}

// ListKeys mocks the ListKeys method of KeyManager.
func (m *MockKeyManager) ListKeys(ctx context.Context) ([]*cryptoDomain.EncryptionKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*cryptoDomain.EncryptionKey), args.Error(1)
}

// OnRotate mocks the OnRotate method of KeyManager.
func (m *MockKeyManager) OnRotate(hook cryptoUsecase.RotationHook) {
	m.Called(hook)
}

// InvalidateCurrentKey mocks the InvalidateCurrentKey method of KeyManager.
func (m *MockKeyManager) InvalidateCurrentKey() {
	m.Called()
}

// InvalidateKeyVersions mocks the InvalidateKeyVersions method of KeyManager.
func (m *MockKeyManager) InvalidateKeyVersions() {
	m.Called()
}

// InvalidateSearchKey mocks the InvalidateSearchKey method of KeyManager.
func (m *MockKeyManager) InvalidateSearchKey() {
	m.Called()
}
