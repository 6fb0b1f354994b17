// agent_run and its peers (agent_wait/agent_result/agent_list) launch one
// or more peer agents — separate instances of this same CLI — as child
// processes, each given its own git worktree when write access is
// requested so parallel agents never race on the same files.
//
// The control/output plumbing to each peer is a yamux session carried over
// the child's own stdin/stdout pipe. Two logical streams are opened in a
// fixed order: the peer's live output deltas, then its final JSON result.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/yamux"

	"github.com/riftlab/turnengine/internal/git"
	"github.com/riftlab/turnengine/internal/protocol"
)

// AgentCallState mirrors CallState for a peer agent's own lifecycle,
// independent of (and typically longer-lived than) the agent_run tool
// call that launched it.
type AgentCallState string

const (
	AgentPending   AgentCallState = "pending"
	AgentRunning   AgentCallState = "running"
	AgentCompleted AgentCallState = "completed"
	AgentFailed    AgentCallState = "failed"
)

// AgentHandle tracks one peer agent process.
type AgentHandle struct {
	ID          string
	Prompt      string
	Writable    bool
	WorktreeDir string
	CommitHash  string // set once a writable agent's changes are committed in its worktree
	State       AgentCallState
	Output      string
	Err         string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// AgentPool launches and tracks peer agent processes, bounding concurrency
// with a semaphore.
type AgentPool struct {
	// Command builds the exec.Cmd for one peer agent invocation; overridable
	// for tests. Default wires the "agent" subcommand of this same binary.
	Command func(ctx context.Context, workDir, prompt string) *exec.Cmd

	git        *git.Manager
	maxWorkers int
	sem        chan struct{}

	mu     sync.Mutex
	agents map[string]*AgentHandle
	seq    int
}

func NewAgentPool(gitMgr *git.Manager, maxWorkers int) *AgentPool {
	if maxWorkers <= 0 {
		maxWorkers = 5
	}
	return &AgentPool{
		git:        gitMgr,
		maxWorkers: maxWorkers,
		sem:        make(chan struct{}, maxWorkers),
		agents:     map[string]*AgentHandle{},
	}
}

func (p *AgentPool) nextID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return fmt.Sprintf("agent-%d", p.seq)
}

// Launch starts one peer agent for prompt. If writable, the agent runs
// inside a fresh git worktree so its edits never collide with the primary
// session's working tree; a read-only agent runs directly against cwd.
func (p *AgentPool) Launch(ctx context.Context, prompt string, writable bool) (*AgentHandle, error) {
	id := p.nextID()
	h := &AgentHandle{ID: id, Prompt: prompt, Writable: writable, State: AgentPending, StartedAt: time.Now()}

	workDir := ""
	if writable && p.git != nil {
		dir := fmt.Sprintf("/tmp/turnengine-agent-%s", id)
		if err := p.git.AddWorktree(dir, "agent/"+id); err != nil {
			h.State = AgentFailed
			h.Err = err.Error()
			p.store(h)
			return h, err
		}
		workDir = dir
		h.WorktreeDir = dir
	}

	p.store(h)

	go func() {
		p.sem <- struct{}{}
		defer func() { <-p.sem }()

		p.setState(id, AgentRunning)
		p.runPeer(ctx, id, workDir, prompt)
	}()

	return h, nil
}

// peerResult mirrors the control-channel payload a peer "turnengine agent"
// process writes once its own turn loop finishes; kept here as a plain
// wire-contract struct since cmd/turnengine is not importable from
// internal/tools.
type peerResult struct {
	Output  string `json:"output"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// cmdConn adapts an os/exec child's stdin/stdout pipes into the
// io.ReadWriteCloser yamux.Client needs.
type cmdConn struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (c cmdConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c cmdConn) Write(p []byte) (int, error) { return c.w.Write(p) }
func (c cmdConn) Close() error {
	werr := c.w.Close()
	rerr := c.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// runPeer starts the child, multiplexes its stdio into an output stream and
// a control stream over yamux, and records the final state once both the
// process and the control stream have finished.
func (p *AgentPool) runPeer(ctx context.Context, id, workDir, prompt string) {
	fail := func(err error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		agent := p.agents[id]
		agent.FinishedAt = time.Now()
		agent.State = AgentFailed
		agent.Err = err.Error()
	}

	cmd := p.buildCommand(ctx, workDir, prompt)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		fail(fmt.Errorf("stdin pipe: %w", err))
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		fail(fmt.Errorf("stdout pipe: %w", err))
		return
	}
	if err := cmd.Start(); err != nil {
		fail(fmt.Errorf("start: %w", err))
		return
	}

	session, err := yamux.Client(cmdConn{r: stdout, w: stdin}, nil)
	if err != nil {
		_ = cmd.Process.Kill()
		fail(fmt.Errorf("yamux client: %w", err))
		return
	}
	defer session.Close()

	outStream, err := session.Open()
	if err != nil {
		_ = cmd.Process.Kill()
		fail(fmt.Errorf("open output stream: %w", err))
		return
	}
	ctlStream, err := session.Open()
	if err != nil {
		_ = cmd.Process.Kill()
		fail(fmt.Errorf("open control stream: %w", err))
		return
	}

	go func() {
		buf := make([]byte, 4096)
		for {
			n, readErr := outStream.Read(buf)
			if n > 0 {
				p.appendOutput(id, string(buf[:n]))
			}
			if readErr != nil {
				return
			}
		}
	}()

	var result peerResult
	decodeErr := json.NewDecoder(ctlStream).Decode(&result)
	waitErr := cmd.Wait()

	p.mu.Lock()
	agent := p.agents[id]
	agent.FinishedAt = time.Now()
	switch {
	case decodeErr != nil:
		agent.State = AgentFailed
		agent.Err = fmt.Sprintf("control stream: %v: %s", decodeErr, stderr.String())
	case !result.Success:
		agent.State = AgentFailed
		agent.Err = result.Error
		agent.Output = result.Output
	case waitErr != nil:
		agent.State = AgentFailed
		agent.Err = fmt.Sprintf("%v: %s", waitErr, stderr.String())
		agent.Output = result.Output
	default:
		agent.State = AgentCompleted
		agent.Output = result.Output
	}
	finalState := agent.State
	p.mu.Unlock()

	if workDir != "" {
		p.finalizeWorktree(id, workDir, finalState == AgentCompleted)
	}
}

// finalizeWorktree commits a writable peer agent's changes inside its own
// worktree so they survive as a reviewable commit on the agent/<id> branch,
// then tears the worktree directory down; a failed agent's worktree is
// discarded without committing.
func (p *AgentPool) finalizeWorktree(id, workDir string, succeeded bool) {
	if succeeded {
		wtMgr := git.NewManager(workDir)
		if err := wtMgr.StageAll(); err == nil {
			if hash, err := wtMgr.Commit(fmt.Sprintf("agent %s", id)); err == nil {
				p.mu.Lock()
				if agent, ok := p.agents[id]; ok {
					agent.CommitHash = hash
				}
				p.mu.Unlock()
			}
		}
	}
	if p.git != nil {
		_ = p.git.RemoveWorktree(workDir)
	}
}

// appendOutput tails a chunk of the peer's live output onto its handle.
func (p *AgentPool) appendOutput(id, chunk string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.agents[id]; ok {
		h.Output += chunk
	}
}

func (p *AgentPool) buildCommand(ctx context.Context, workDir, prompt string) *exec.Cmd {
	if p.Command != nil {
		return p.Command(ctx, workDir, prompt)
	}
	cmd := exec.CommandContext(ctx, "turnengine", "agent", "--prompt", prompt)
	if workDir != "" {
		cmd.Dir = workDir
	}
	return cmd
}

func (p *AgentPool) store(h *AgentHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agents[h.ID] = h
}

func (p *AgentPool) setState(id string, s AgentCallState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.agents[id]; ok {
		h.State = s
	}
}

// Get returns a snapshot of one agent's current handle.
func (p *AgentPool) Get(id string) (AgentHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.agents[id]
	if !ok {
		return AgentHandle{}, false
	}
	return *h, true
}

// List returns a snapshot of every agent launched this session.
func (p *AgentPool) List() []AgentHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]AgentHandle, 0, len(p.agents))
	for _, h := range p.agents {
		out = append(out, *h)
	}
	return out
}

// Wait blocks until the agent reaches a terminal state or ctx is done.
func (p *AgentPool) Wait(ctx context.Context, id string) (AgentHandle, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if h, ok := p.Get(id); ok && (h.State == AgentCompleted || h.State == AgentFailed) {
			return h, nil
		}
		select {
		case <-ctx.Done():
			return AgentHandle{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RegisterAgentTools wires agent_run/agent_wait/agent_result/agent_list.
func RegisterAgentTools(r *Registry, pool *AgentPool) {
	r.Register("agent_run", agentRunHandler(pool))
	r.Register("agent_wait", agentWaitHandler(pool))
	r.Register("agent_result", agentResultHandler(pool))
	r.Register("agent_list", agentListHandler(pool))
}

func agentRunHandler(pool *AgentPool) Handler {
	return func(ctx context.Context, callID string, args json.RawMessage) (protocol.ResponseItem, error) {
		var payload struct {
			Prompt   string `json:"prompt"`
			Writable bool   `json:"writable"`
		}
		if err := json.Unmarshal(args, &payload); err != nil || payload.Prompt == "" {
			return protocol.ResponseItem{}, fmt.Errorf("failed to parse function arguments: prompt is required")
		}
		h, err := pool.Launch(ctx, payload.Prompt, payload.Writable)
		if err != nil {
			return protocol.NewFunctionCallOutput(callID, err.Error(), false), nil
		}
		out, _ := json.Marshal(map[string]string{"agent_id": h.ID})
		return protocol.NewFunctionCallOutput(callID, string(out), true), nil
	}
}

func agentWaitHandler(pool *AgentPool) Handler {
	return func(ctx context.Context, callID string, args json.RawMessage) (protocol.ResponseItem, error) {
		var payload struct {
			AgentID string `json:"agent_id"`
		}
		if err := json.Unmarshal(args, &payload); err != nil || payload.AgentID == "" {
			return protocol.ResponseItem{}, fmt.Errorf("failed to parse function arguments: agent_id is required")
		}
		h, err := pool.Wait(ctx, payload.AgentID)
		if err != nil {
			return protocol.NewFunctionCallOutput(callID, err.Error(), false), nil
		}
		return agentHandleOutput(callID, h), nil
	}
}

func agentResultHandler(pool *AgentPool) Handler {
	return func(ctx context.Context, callID string, args json.RawMessage) (protocol.ResponseItem, error) {
		var payload struct {
			AgentID string `json:"agent_id"`
		}
		if err := json.Unmarshal(args, &payload); err != nil || payload.AgentID == "" {
			return protocol.ResponseItem{}, fmt.Errorf("failed to parse function arguments: agent_id is required")
		}
		h, ok := pool.Get(payload.AgentID)
		if !ok {
			return protocol.NewFunctionCallOutput(callID, "unknown agent_id", false), nil
		}
		return agentHandleOutput(callID, h), nil
	}
}

func agentListHandler(pool *AgentPool) Handler {
	return func(ctx context.Context, callID string, args json.RawMessage) (protocol.ResponseItem, error) {
		list := pool.List()
		out, _ := json.Marshal(list)
		return protocol.NewFunctionCallOutput(callID, string(out), true), nil
	}
}

func agentHandleOutput(callID string, h AgentHandle) protocol.ResponseItem {
	out, _ := json.Marshal(h)
	return protocol.NewFunctionCallOutput(callID, string(out), h.State == AgentCompleted)
}
