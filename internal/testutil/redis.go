// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tradeboard/tradeboard/internal/platform/cache"
)

// Redis starts an in-memory Redis for the duration of t and returns a client
// built the same way the binaries build theirs.
func Redis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := cache.NewClient(cache.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}
