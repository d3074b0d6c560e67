// Package testing switches the binaries into test mode for any test package
// that imports it.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		if os.Getenv("STORE_DRIVER") == "" {
			_ = os.Setenv("STORE_DRIVER", "memory")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain runs m in test mode.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
