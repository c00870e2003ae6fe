package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Logf("fitted %d neurons", 3)
	if got != "fitted 3 neurons" {
		t.Errorf("Expected %q, got %q", "fitted 3 neurons", got)
	}

	got = ""
	SetLogger(nil)
	Logf("muted")
	if got != "" {
		t.Errorf("No-op logger should not reach the previous logger, got %q", got)
	}
}
