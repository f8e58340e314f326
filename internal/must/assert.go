// Package must exits the process on violated invariants.
package must

import (
	"log/slog"
	"os"
)

// Assert logs failMessage with args and exits when cond is false.
func Assert(cond bool, failMessage string, args ...any) {
	if !cond {
		slog.Error("assertion failed: "+failMessage, args...)
		os.Exit(1)
	}
}

func NoError(err error, args ...any) {
	if err != nil {
		Assert(false, err.Error(), args...)
	}
}

// Value returns v or exits when err is set.
func Value[T any](v T, err error) T {
	NoError(err)
	return v
}
