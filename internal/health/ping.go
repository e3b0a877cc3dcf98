package health

import "context"

// HealthPinger is implemented by dependencies that expose a direct
// connectivity probe. Returns nil when healthy.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}
