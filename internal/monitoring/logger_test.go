package monitoring

import (
	"fmt"
	"strings"
	"testing"
)

func capture(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() {
		Logf = original
		SetVerbose(false)
	})
	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := capture(t)

	Logf("[fill] seeded %d cells", 12)
	if len(*lines) != 1 || (*lines)[0] != "[fill] seeded 12 cells" {
		t.Fatalf("unexpected log lines: %v", *lines)
	}

	SetLogger(nil)
	Logf("muted")
	if len(*lines) != 1 {
		t.Errorf("no-op logger should not record, got %v", *lines)
	}
}

func TestDebugf_RespectsVerbose(t *testing.T) {
	lines := capture(t)

	Debugf("hidden")
	if len(*lines) != 0 {
		t.Fatalf("Debugf logged while quiet: %v", *lines)
	}

	SetVerbose(true)
	Debugf("shown %s", "now")
	if len(*lines) != 1 || (*lines)[0] != "shown now" {
		t.Errorf("Debugf output = %v", *lines)
	}
}

func TestTimed(t *testing.T) {
	lines := capture(t)

	Timed("[label] stage")()
	if len(*lines) != 1 || !strings.HasPrefix((*lines)[0], "[label] stage took ") {
		t.Errorf("Timed output = %v", *lines)
	}
}
