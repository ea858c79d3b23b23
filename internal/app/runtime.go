package app

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// testModeEnv makes the binaries return before dialing Postgres or Redis.
// The testing package sets it on import.
const testModeEnv = "ODYSSEY_TEST_MODE"

var (
	testModeRead atomic.Bool
	testMode     atomic.Bool
)

func readTestMode() bool {
	on, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(testModeEnv)))
	return err == nil && on
}

// InTestMode reports whether startup should be skipped. The environment is
// read on first use; call RefreshTestMode after changing it.
func InTestMode() bool {
	if !testModeRead.Load() {
		return RefreshTestMode()
	}
	return testMode.Load()
}

// RefreshTestMode re-reads the environment and returns the new value.
func RefreshTestMode() bool {
	on := readTestMode()
	testMode.Store(on)
	testModeRead.Store(true)
	return on
}
