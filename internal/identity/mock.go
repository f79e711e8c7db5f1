package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// MockProvider is a deterministic stand-in for the identity collaborator.
// Any credentials are accepted. It exists for development and tests; the
// serve command only wires it when the config asks for it explicitly.
type MockProvider struct {
	// Name used when Login has no better guess. Register uses the
	// caller-supplied name.
	DefaultName string
}

// NewMockProvider creates a mock provider with the historical default
// display name.
func NewMockProvider() *MockProvider {
	return &MockProvider{DefaultName: "Test User"}
}

// Login accepts any credentials and fabricates an identity.
func (m *MockProvider) Login(ctx context.Context, email, password string) (Identity, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{
		Token:  "mock-" + uuid.NewString(),
		UserID: "1",
		Name:   m.DefaultName,
		Email:  email,
	}, nil
}

// Register accepts any input and fabricates an identity with the given name.
func (m *MockProvider) Register(ctx context.Context, email, password, name string) (Identity, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{
		Token:  "mock-" + uuid.NewString(),
		UserID: "2",
		Name:   name,
		Email:  email,
	}, nil
}
