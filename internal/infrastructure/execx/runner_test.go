package execx

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExecRunnerCapturesStdout(t *testing.T) {
	r := NewExecRunner(5 * time.Second)
	out, _, err := r.Run(context.Background(), "sh", "-c", "printf hello")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Fatalf("unexpected stdout %q", out)
	}
}

func TestExecRunnerTimesOut(t *testing.T) {
	r := NewExecRunner(50 * time.Millisecond)
	_, _, err := r.Run(context.Background(), "sh", "-c", "sleep 2")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestAvailable(t *testing.T) {
	if !Available("sh") {
		t.Fatalf("expected sh to be available")
	}
	if Available("definitely-not-a-real-binary-4242") {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if Available("  ") {
		t.Fatalf("expected blank binary name to be unavailable")
	}
}
