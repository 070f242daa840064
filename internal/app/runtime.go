package app

import (
	"os"
	"strconv"
)

const testModeEnv = "TRADEBOARD_TEST_MODE"

// InTestMode reports whether TRADEBOARD_TEST_MODE is truthy. The binaries
// return before dialing Redis or Postgres when it is.
func InTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	return on
}
