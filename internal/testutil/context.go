package testutil

import (
	"context"
	"time"
)

// TestTimeout bounds every test context.
const TestTimeout = 10 * time.Second

// TestContext returns a context that expires after TestTimeout.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), TestTimeout)
}
