package debugtools

import (
	"strings"
	"testing"
	"time"

	"github.com/drewcrawford/exfiltrate-sub000/internal/registry"
)

func TestExecHandlerRejectsEmptyCommand(t *testing.T) {
	if _, err := execHandler(registry.Args{}); err == nil {
		t.Fatal("expected an error when no command is given")
	}
}

func TestExecHandlerUsesNamedCommandArg(t *testing.T) {
	resp, err := execHandler(registry.Args{"command": "echo hello-named"})
	if err != nil {
		t.Fatalf("execHandler: %v", err)
	}
	if !strings.Contains(resp.Text, "hello-named") {
		t.Fatalf("output %q does not contain expected text", resp.Text)
	}
}

func TestExecHandlerFallsBackToPositionalArgs(t *testing.T) {
	resp, err := execHandler(registry.Args{"0": "echo", "1": "hello-positional"})
	if err != nil {
		t.Fatalf("execHandler: %v", err)
	}
	if !strings.Contains(resp.Text, "hello-positional") {
		t.Fatalf("output %q does not contain expected text", resp.Text)
	}
}

func TestRunInPTYCapturesOutput(t *testing.T) {
	out, err := runInPTY("echo captured-output", DefaultTimeout)
	if err != nil {
		t.Fatalf("runInPTY: %v", err)
	}
	if !strings.Contains(out, "captured-output") {
		t.Fatalf("output %q does not contain expected text", out)
	}
}

func TestRunInPTYReportsNonZeroExit(t *testing.T) {
	_, err := runInPTY("exit 7", DefaultTimeout)
	if err == nil {
		t.Fatal("expected an error for a nonzero exit status")
	}
}

func TestRunInPTYKillsOnTimeout(t *testing.T) {
	_, err := runInPTY("sleep 5", 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected a timeout error, got %v", err)
	}
}
