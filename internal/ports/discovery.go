package ports

import "context"

// Discoverer resolves the gateway endpoint for a logical service name.
type Discoverer interface {
	Discover(ctx context.Context, service string) (string, error)
}
