// Package testing switches the process into test mode when imported, so
// binaries and config loading skip real infrastructure.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

// SigningKey is the JWT key installed for tests that load app.Config.
const SigningKey = "test-signing-key-0123456789abcdef"

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		if os.Getenv("JWT_SIGNING_KEY") == "" {
			_ = os.Setenv("JWT_SIGNING_KEY", SigningKey)
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
