package state

import (
	"context"
	"io"
)

// Capabilities is the set of external operations a Reconciler sequences.
// Implementations must be safe for concurrent use across different
// identifiers; calls for the same identifier are serialized by the caller.
type Capabilities interface {
	// Exists reports whether a resource with this identifier is installed.
	Exists(ctx context.Context, id string) (bool, error)

	// Generate serializes the desired state into installable content.
	Generate(ctx context.Context, id string, desired DesiredState) ([]byte, error)

	// Validate compares the currently installed resource, if any, with content.
	Validate(ctx context.Context, id string, content []byte) (ValidationResult, error)

	// CreateScopedTemp returns a securely created, uniquely named temporary
	// file whose name ends in suffix.
	CreateScopedTemp(suffix, namespace string) (ScopedTemp, error)

	// Install installs the content stored at path. A false return is an
	// operation failure and is reported, not raised.
	Install(ctx context.Context, path string) bool

	// Remove uninstalls the resource by identifier.
	Remove(ctx context.Context, id string) bool
}

// ScopedTemp is temporary storage owned by exactly one reconciliation.
type ScopedTemp interface {
	io.WriteCloser
	Path() string
	// Release closes and deletes the storage. It is safe to call more than once.
	Release() error
}
