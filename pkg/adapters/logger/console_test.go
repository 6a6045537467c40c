package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/user/gopseek/pkg/ports"
)

func TestConsoleLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(ports.LevelWarn, &buf)

	log.Debug("seek %d", 1)
	log.Info("opened %s", "a.mp4")
	log.Warn("warned %d", 2)
	log.Error("failed %d", 3)

	out := buf.String()
	if strings.Contains(out, "seek") || strings.Contains(out, "opened") {
		t.Errorf("messages below warn should be dropped: %q", out)
	}
	if !strings.Contains(out, "warned 2") || !strings.Contains(out, "failed 3") {
		t.Errorf("missing messages: %q", out)
	}
}

func TestConsoleLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(ports.LevelDebug, &buf).WithComponent("engine")

	log.Debug("pass %d", 7)
	if got := strings.TrimSpace(buf.String()); got != "[engine] pass 7" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestConsoleLogger_Quiet(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(ports.LevelQuiet, &buf)
	log.Error("boom")
	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote %q", buf.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error", "quiet"} {
		level, err := ports.ParseLogLevel(name)
		if err != nil || level.String() != name {
			t.Errorf("ParseLogLevel(%q) = %v, %v", name, level, err)
		}
	}
	if _, err := ports.ParseLogLevel("trace"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestConsoleLogger_ComponentsShareOutput(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriter(ports.LevelInfo, &buf)
	a := root.WithComponent("sheet")
	b := a.WithComponent("engine")

	root.Info("start")
	a.Debug("hidden")
	b.Warn("slow pass")

	want := "start\n[engine] slow pass\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
