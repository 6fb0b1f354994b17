package sandbox

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/riftlab/turnengine/internal/format"
)

const (
	// ReadChunkSize is the max number of bytes read from a pipe per syscall,
	// and the unit in which stdout/stderr deltas are emitted.
	ReadChunkSize = 8 * 1024

	// MaxExecOutputDeltasPerCall caps how many ExecStreamChunk events a
	// single exec may emit; beyond this, output is still captured in the
	// aggregate buffer but no further deltas are streamed.
	MaxExecOutputDeltasPerCall = 10_000

	// tailBufferCap bounds the separate rolling tail buffer only; the
	// aggregate buffer itself is never truncated (beyond the event cap
	// above, stdout/stderr are captured in full).
	tailBufferCap = 8 * 1024

	// readerGrace is how long the pipe readers get to drain remaining
	// output after the child has been killed before they are abandoned.
	readerGrace = 250 * time.Millisecond

	execTimeoutExitCode = 124
	sigkillCode         = 9
	exitCodeSignalBase  = 128
)

// Executor runs ExecParams and streams output chunks to onChunk as they
// arrive. Passing a nil onChunk still aggregates output into the result.
type Executor struct {
	DefaultShell []string // e.g. []string{"/bin/sh", "-c"}
}

func NewExecutor() *Executor {
	return &Executor{DefaultShell: []string{"/bin/sh", "-c"}}
}

// outputCollector serializes chunk handling across the concurrent stdout
// and stderr readers: per-stream buffers, the shared aggregate, the rolling
// tail, and the delta-event cap all live behind one lock.
type outputCollector struct {
	mu         sync.Mutex
	callID     string
	onChunk    func(ExecStreamChunk)
	aggregate  bytes.Buffer
	tail       bytes.Buffer
	stdout     bytes.Buffer
	stderr     bytes.Buffer
	deltaCount int
	seq        int
}

func (c *outputCollector) add(stream string, chunk []byte) {
	c.mu.Lock()
	if stream == "stdout" {
		c.stdout.Write(chunk)
	} else {
		c.stderr.Write(chunk)
	}
	c.aggregate.Write(chunk)
	appendCapped(&c.tail, chunk, tailBufferCap)
	emit := c.onChunk != nil && c.deltaCount < MaxExecOutputDeltasPerCall
	if emit {
		c.deltaCount++
		c.seq++
	}
	seq := c.seq
	c.mu.Unlock()

	if emit {
		c.onChunk(ExecStreamChunk{CallID: c.callID, Stream: stream, Bytes: chunk, Sequence: seq})
	}
}

// Run executes params.Command under decision.InitialSandbox, honoring
// params.TimeoutMs, and streaming chunked stdout/stderr through onChunk
// (may be nil). ctx cancellation is treated as a Ctrl-C: the process group
// is SIGKILLed and the exit code is synthesized as 128+SIGKILL.
//
// Of the three sandbox backends only None is implemented in-process;
// Seatbelt and LinuxSeccomp are named collaborators (platform wrappers the
// host installs) and currently degrade to an unsandboxed run. The decision
// still travels with the exec so IsLikelySandboxDenied can classify exit
// code 126 correctly.
func (e *Executor) Run(ctx context.Context, callID string, params ExecParams, decision SandboxDecision, onChunk func(ExecStreamChunk)) (ExecToolCallOutput, error) {
	if params.WithEscalatedPermissions && params.RequiresTTY {
		return e.runWithPTY(ctx, callID, params, onChunk)
	}

	start := time.Now()

	runCtx := ctx
	var cancelTimeout context.CancelFunc
	if d := params.Timeout(); d > 0 {
		runCtx, cancelTimeout = context.WithTimeout(ctx, d)
		defer cancelTimeout()
	}

	cmd := exec.Command(params.Command[0], params.Command[1:]...)
	if params.Cwd != "" {
		cmd.Dir = params.Cwd
	}
	if len(params.Env) > 0 {
		cmd.Env = mergeEnv(params.Env)
	}
	cmd.SysProcAttr = killOnDropAttr()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return ExecToolCallOutput{}, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return ExecToolCallOutput{}, err
	}

	if err := cmd.Start(); err != nil {
		return ExecToolCallOutput{}, err
	}

	collector := &outputCollector{callID: callID, onChunk: onChunk}

	var readers sync.WaitGroup
	readPipe := func(r io.Reader, stream string) {
		defer readers.Done()
		buf := make([]byte, ReadChunkSize)
		for {
			n, rerr := r.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				collector.add(stream, chunk)
			}
			if rerr != nil {
				return
			}
		}
	}
	readers.Add(2)
	go readPipe(stdout, "stdout")
	go readPipe(stderr, "stderr")

	readersDone := make(chan struct{})
	go func() {
		readers.Wait()
		close(readersDone)
	}()

	waitErr := make(chan error, 1)
	go func() {
		<-readersDone
		waitErr <- cmd.Wait()
	}()

	var exitCode int
	timedOut := false
	select {
	case <-runCtx.Done():
		killProcessGroup(cmd)
		// Give the readers a short grace period to drain whatever the
		// child flushed before dying, then abandon them.
		select {
		case <-readersDone:
			<-waitErr
		case <-time.After(readerGrace):
			go func() { <-waitErr }()
		}
		if ctx.Err() != nil {
			// Caller (Ctrl-C) cancellation, not our own timeout.
			exitCode = exitCodeSignalBase + sigkillCode
		} else {
			timedOut = true
			exitCode = execTimeoutExitCode
		}
	case err := <-waitErr:
		exitCode = exitStatusOf(cmd, err)
	}

	collector.mu.Lock()
	defer collector.mu.Unlock()
	return ExecToolCallOutput{
		ExitCode:         exitCode,
		SandboxType:      decision.InitialSandbox,
		Stdout:           format.ProcessTerminalOutput(collector.stdout.String()),
		Stderr:           format.ProcessTerminalOutput(collector.stderr.String()),
		AggregatedOutput: format.ProcessTerminalOutput(collector.aggregate.String()),
		Tail:             format.ProcessTerminalOutput(collector.tail.String()),
		Duration:         time.Since(start),
		TimedOut:         timedOut,
	}, nil
}

func appendCapped(buf *bytes.Buffer, chunk []byte, max int) {
	buf.Write(chunk)
	if buf.Len() > max {
		tail := buf.Bytes()[buf.Len()-max:]
		kept := append([]byte(nil), tail...)
		buf.Reset()
		buf.Write(kept)
	}
}

func exitStatusOf(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return exitCodeSignalBase + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	return -1
}

func mergeEnv(extra map[string]string) []string {
	env := make([]string, 0, len(extra))
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// IsLikelySandboxDenied reports whether a non-zero exit under sandboxing
// most likely reflects the sandbox denying the syscall rather than the
// command's own logic. Only exit code 126 ("cannot execute") is treated as
// a sandbox denial signal; 1, 2 and 127 are the command's own failures.
func IsLikelySandboxDenied(sandboxType SandboxType, exitCode int) bool {
	if sandboxType == SandboxNone {
		return false
	}
	return exitCode == 126
}
