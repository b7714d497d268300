package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/shaban/imagecapture/runloop"
)

// SkipUnlessEnv skips the test unless the given env var equals the wanted value.
func SkipUnlessEnv(t *testing.T, key, want string) {
	t.Helper()
	if os.Getenv(key) != want {
		t.Skipf("skipped: set %s=%s to run", key, want)
	}
}

// IsCI reports whether running under common CI environments.
func IsCI() bool {
	if os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true" {
		return true
	}
	return false
}

// StartLoop returns a started run loop that is closed with the test.
func StartLoop(t *testing.T) *runloop.Queue {
	t.Helper()
	q := runloop.New(256)
	q.Start()
	t.Cleanup(q.Close)
	return q
}

// Flush waits until every task posted to loop so far has run.
func Flush(t *testing.T, loop runloop.Loop) {
	t.Helper()
	if err := loop.RunSync(func(context.Context) error { return nil }); err != nil {
		t.Fatalf("flush loop: %v", err)
	}
}
