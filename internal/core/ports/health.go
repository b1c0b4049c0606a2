package ports

import "context"

// HealthChecker is a dependency probed by the readiness endpoint.
type HealthChecker interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error
	// Name identifies the dependency in the health payload ("postgresql", "redis", "memory").
	Name() string
}
