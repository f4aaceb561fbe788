package gateway

import "context"

// Gateway is a front end through which users reach the coach and their tasks.
type Gateway interface {
	// Start serves until Stop is called or the listener fails
	Start() error
	// Stop gracefully shuts down the gateway
	Stop(ctx context.Context) error
}
