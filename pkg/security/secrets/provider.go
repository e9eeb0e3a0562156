package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a provider that does not hold a secret.
var ErrNotFound = errors.New("secret not found")

// Provider looks up secrets by name.
type Provider interface {
	// Lookup returns the value of the secret. It returns an error wrapping
	// ErrNotFound when the provider does not hold the secret.
	Lookup(ctx context.Context, name string) (string, error)

	// Name identifies the provider in errors and logs.
	Name() string
}
