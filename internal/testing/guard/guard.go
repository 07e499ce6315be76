// Package guard switches entrypoints into test mode when imported by a test binary.
package guard

import "os"

func init() {
	if os.Getenv("LEDGER_TEST_MODE") == "" {
		_ = os.Setenv("LEDGER_TEST_MODE", "1")
	}
}
