// Package monitoring routes the diagnostics of encoding model fits, such as
// GLM divergence warnings, along with the progress lines of replay-sim.
package monitoring

import "log"

// Logf receives every fit diagnostic. Tests silence it with SetLogger(nil)
// so the IRLS warnings of deliberately degenerate fits stay quiet.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps the diagnostic sink. nil discards everything.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
