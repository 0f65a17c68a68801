// Package lifecycle starts and stops the long-running parts of `insight serve`
// in dependency order.
package lifecycle

import "context"

// Component is a long-running part of the server.
type Component interface {
	// Start brings the component up. Failing aborts startup.
	Start(ctx context.Context) error

	// Stop releases resources within the context deadline. Errors are logged
	// and do not stop other components.
	Stop(ctx context.Context) error

	// Name identifies the component in logs. Must not be empty.
	Name() string
}
