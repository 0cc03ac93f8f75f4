package app

import (
	"os"
	"sync"
)

const testModeEnv = "STOCKLINE_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether the binaries should refuse to start real
// listeners and workers. Set STOCKLINE_TEST_MODE=1 in test harnesses.
func InTestMode() bool {
	return testMode()
}
