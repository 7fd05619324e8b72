package types

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestRequestLogsStartAndOutcome(t *testing.T) {
	var out bytes.Buffer
	log := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	req := StartRequest(log, "generate", "prompt_length", 5)
	wantErr := errors.New("backend down")
	if err := req.Fail(wantErr); !errors.Is(err, wantErr) {
		t.Fatalf("Fail returned %v, want %v", err, wantErr)
	}
	req.Done("response_length", 3)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d: %q", len(lines), out.String())
	}
	for i, want := range []string{"provider request started", "provider request failed", "provider request completed"} {
		if !strings.Contains(lines[i], want) || !strings.Contains(lines[i], "operation=generate") {
			t.Fatalf("line %d = %q, want %q with operation", i, lines[i], want)
		}
	}
	if !strings.Contains(lines[1], "error=\"backend down\"") {
		t.Fatalf("failure line missing error: %q", lines[1])
	}
	if !strings.Contains(lines[2], "duration_ms=") || !strings.Contains(lines[2], "response_length=3") {
		t.Fatalf("completion line missing attrs: %q", lines[2])
	}
}
