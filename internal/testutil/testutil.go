// Package testutil provides in-process stand-ins for managed devices: a fake
// REST device serving CLI text over HTTPS and miniredis-backed structured
// configuration databases.
package testutil

import (
	"context"
	"testing"
	"time"
)

// Context returns a context that is cancelled when the test ends or after
// ten seconds, whichever comes first.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
