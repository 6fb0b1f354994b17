package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"
)

func run(t *testing.T, params ExecParams) ExecToolCallOutput {
	t.Helper()
	out, err := NewExecutor().Run(context.Background(), "call", params, SandboxDecision{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out
}

func TestRunAggregatesUnboundedOutput(t *testing.T) {
	big := strings.Repeat("x", 4*tailBufferCap)
	out := run(t, ExecParams{
		Command: []string{"/bin/sh", "-c", "printf '%s' \"$0\"", big},
	})
	if len(out.AggregatedOutput) < len(big) {
		t.Fatalf("want AggregatedOutput to carry all %d bytes unbounded, got %d", len(big), len(out.AggregatedOutput))
	}
	if len(out.Tail) > tailBufferCap {
		t.Fatalf("want Tail capped at %d bytes, got %d", tailBufferCap, len(out.Tail))
	}
}

func TestRunStreamsSequencedChunks(t *testing.T) {
	var chunks []ExecStreamChunk
	out, err := NewExecutor().Run(context.Background(), "call-seq", ExecParams{
		Command: []string{"/bin/echo", "chunked"},
	}, SandboxDecision{}, func(c ExecStreamChunk) { chunks = append(chunks, c) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ExitCode != 0 {
		t.Fatalf("exit = %d", out.ExitCode)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one streamed chunk")
	}
	for i, c := range chunks {
		if c.CallID != "call-seq" {
			t.Errorf("chunk %d call id = %q", i, c.CallID)
		}
		if c.Sequence != i+1 {
			t.Errorf("chunk %d sequence = %d, want %d", i, c.Sequence, i+1)
		}
	}
}

func TestRunTimeoutMapsToExit124(t *testing.T) {
	timeout := int64(200)
	start := time.Now()
	out := run(t, ExecParams{
		Command:   []string{"/bin/sh", "-c", "sleep 30"},
		TimeoutMs: &timeout,
	})
	if !out.TimedOut {
		t.Fatal("want TimedOut=true")
	}
	if out.ExitCode != execTimeoutExitCode {
		t.Fatalf("exit = %d, want %d", out.ExitCode, execTimeoutExitCode)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout took %v, child was not killed promptly", elapsed)
	}
}

func TestRunCancellationMapsToKilled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	out, err := NewExecutor().Run(ctx, "call", ExecParams{
		Command: []string{"/bin/sh", "-c", "sleep 30"},
	}, SandboxDecision{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.TimedOut {
		t.Fatal("cancellation must not be reported as a timeout")
	}
	if out.ExitCode != exitCodeSignalBase+sigkillCode {
		t.Fatalf("exit = %d, want %d", out.ExitCode, exitCodeSignalBase+sigkillCode)
	}
}

func TestRunWithPTYUsedForEscalatedTTYRequests(t *testing.T) {
	out := run(t, ExecParams{
		Command:                  []string{"/bin/echo", "hello"},
		WithEscalatedPermissions: true,
		RequiresTTY:              true,
	})
	if out.ExitCode != 0 {
		t.Fatalf("want exit 0, got %d", out.ExitCode)
	}
	if !strings.Contains(out.AggregatedOutput, "hello") {
		t.Fatalf("want output to contain 'hello', got %q", out.AggregatedOutput)
	}
}

func TestIsLikelySandboxDenied(t *testing.T) {
	if IsLikelySandboxDenied(SandboxNone, 126) {
		t.Error("an unsandboxed 126 is not a denial")
	}
	if !IsLikelySandboxDenied(SandboxLinuxSeccomp, 126) {
		t.Error("a sandboxed 126 is a denial")
	}
	for _, code := range []int{1, 2, 127} {
		if IsLikelySandboxDenied(SandboxSeatbelt, code) {
			t.Errorf("exit %d is an ordinary failure, not a denial", code)
		}
	}
}

func TestAppendCappedSliceCapsLength(t *testing.T) {
	var dst []byte
	dst = appendCappedSlice(dst, []byte(strings.Repeat("a", tailBufferCap)), tailBufferCap)
	dst = appendCappedSlice(dst, []byte("bbbb"), tailBufferCap)
	if len(dst) != tailBufferCap {
		t.Fatalf("want len %d, got %d", tailBufferCap, len(dst))
	}
	if !strings.HasSuffix(string(dst), "bbbb") {
		t.Fatalf("want capped slice to keep the most recent bytes, got %q", string(dst))
	}
}
