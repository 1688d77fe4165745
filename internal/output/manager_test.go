package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestManagerLifecycle(t *testing.T) {
	var buf bytes.Buffer
	m := NewManagerWithWriter(&buf)
	m.Register("a", "a.mp4")
	m.Register("b", "b.mp4")
	m.Register("c", "c.mp4")
	m.Register("a", "duplicate")

	m.SetStatus("a", StatusActive)
	m.SetProgress("a", 512, 1024)
	if m.GetStatus("a") != StatusActive {
		t.Errorf("Expected active, got %s", m.GetStatus("a"))
	}
	m.Complete("a", "")
	m.ReportError("b", errors.New("server returned status 500"))
	m.Cancel("c", "Cancelled c.mp4")
	m.SetStatus("missing", StatusActive)
	if m.GetStatus("missing") != "unknown" {
		t.Errorf("Expected unknown for missing key")
	}

	success, failed, cancelled, total := m.Counts()
	if success != 1 || failed != 1 || cancelled != 1 || total != 3 {
		t.Errorf("Expected 1/1/1 of 3, got %d/%d/%d of %d", success, failed, cancelled, total)
	}

	m.StopDisplay()
	out := buf.String()
	for _, want := range []string{"Completed 1 of 3", "Failed 1 of 3", "Cancelled 1 of 3", "server returned status 500", "b.mp4"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRenderCountsLines(t *testing.T) {
	var buf bytes.Buffer
	m := NewManagerWithWriter(&buf)
	m.Register("1", "one")
	m.SetProgress("1", 10, 100)
	m.Register("2", "two")
	m.Complete("2", "done")

	lines := m.render(50)
	if got := strings.Count(buf.String(), "\n"); got != lines || lines != 3 {
		t.Errorf("Expected 3 rendered lines, got %d (output has %d)", lines, got)
	}

	buf.Reset()
	if lines := m.render(1); lines != 1 {
		t.Errorf("Expected output clipped to 1 line, got %d", lines)
	}
}

func TestDisplayPauseResume(t *testing.T) {
	var buf bytes.Buffer
	m := NewManagerWithWriter(&buf)
	m.displayTick = 10 * time.Millisecond
	m.Register("1", "one")
	m.StartDisplay()
	m.Pause()
	m.Resume()
	m.StopDisplay()
	m.Pause()
	if !strings.Contains(buf.String(), "Completed 0 of 1") {
		t.Errorf("Expected summary after stop, got:\n%s", buf.String())
	}
}

func TestPrintProgressBar(t *testing.T) {
	tests := []struct {
		current, total int64
		percent        string
	}{
		{0, 100, "0.0%"},
		{50, 100, "50.0%"},
		{150, 100, "100.0%"},
		{-5, 100, "0.0%"},
		{5, 0, "100.0%"},
	}
	for _, tt := range tests {
		if bar := PrintProgressBar(tt.current, tt.total, 10); !strings.Contains(bar, tt.percent) {
			t.Errorf("PrintProgressBar(%d, %d) = %q, expected %s", tt.current, tt.total, bar, tt.percent)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[uint64]string{
		0:               "0 B",
		1023:            "1023 B",
		1024:            "1.00 KB",
		1536:            "1.50 KB",
		5 * 1024 * 1024: "5.00 MB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, expected %q", in, got, want)
		}
	}
	if got := FormatSpeed(2048, 2); got != "1.00 KB/s" {
		t.Errorf("Expected 1.00 KB/s, got %s", got)
	}
}
