package sandbox

import (
	"context"
	"os/exec"
	"time"

	"github.com/creack/pty"

	"github.com/riftlab/turnengine/internal/format"
)

// runWithPTY runs params.Command attached to a real pseudo-terminal instead
// of plain pipes, for the with_escalated_permissions execs that need one
// (interactive installers, tools that refuse to run non-interactively).
// The PTY lives only for the duration of this exec and is torn down when
// the command exits.
func (e *Executor) runWithPTY(ctx context.Context, callID string, params ExecParams, onChunk func(ExecStreamChunk)) (ExecToolCallOutput, error) {
	start := time.Now()

	cmd := exec.Command(params.Command[0], params.Command[1:]...)
	if params.Cwd != "" {
		cmd.Dir = params.Cwd
	}
	if len(params.Env) > 0 {
		cmd.Env = mergeEnv(params.Env)
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return ExecToolCallOutput{}, err
	}
	defer ptmx.Close()

	var aggregate, tail []byte
	deltaCount := 0
	buf := make([]byte, ReadChunkSize)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			n, rerr := ptmx.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				aggregate = append(aggregate, chunk...)
				tail = appendCappedSlice(tail, chunk, tailBufferCap)
				if onChunk != nil && deltaCount < MaxExecOutputDeltasPerCall {
					deltaCount++
					onChunk(ExecStreamChunk{CallID: callID, Stream: "stdout", Bytes: chunk, Sequence: deltaCount})
				}
			}
			if rerr != nil {
				return
			}
		}
	}()

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	var exitCode int
	timedOut := false
	runCtx := ctx
	var cancelTimeout context.CancelFunc
	if d := params.Timeout(); d > 0 {
		runCtx, cancelTimeout = context.WithTimeout(ctx, d)
		defer cancelTimeout()
	}

	select {
	case <-runCtx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		if ctx.Err() != nil && (params.Timeout() == 0 || ctx.Err() == context.Canceled) {
			exitCode = exitCodeSignalBase + sigkillCode
		} else {
			timedOut = true
			exitCode = execTimeoutExitCode
		}
	case err := <-waitErr:
		exitCode = exitStatusOf(cmd, err)
	}
	<-readDone

	out := string(aggregate)
	return ExecToolCallOutput{
		ExitCode:         exitCode,
		Stdout:           format.ProcessTerminalOutput(out),
		AggregatedOutput: format.ProcessTerminalOutput(out),
		Tail:             format.ProcessTerminalOutput(string(tail)),
		Duration:         time.Since(start),
		TimedOut:         timedOut,
	}, nil
}

func appendCappedSlice(dst, chunk []byte, max int) []byte {
	dst = append(dst, chunk...)
	if len(dst) > max {
		dst = append([]byte(nil), dst[len(dst)-max:]...)
	}
	return dst
}
