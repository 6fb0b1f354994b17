package rollout

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/riftlab/turnengine/internal/git"
	"github.com/riftlab/turnengine/internal/paths"
	"github.com/riftlab/turnengine/internal/protocol"
)

// writerQueueDepth bounds the recorder's internal channel; a caller that
// produces rollout lines faster than disk can absorb them blocks rather
// than growing memory without limit.
const writerQueueDepth = 256

// Recorder owns one rollout file for the lifetime of a session. All writes
// funnel through a single goroutine so JSONL lines never interleave, and
// every line is flushed as soon as it is written.
type Recorder struct {
	path  string
	meta  SessionMeta
	lock  *flock.Flock
	file  *os.File
	lines chan RolloutLine
	done  chan struct{}

	mu       sync.Mutex
	writeErr error
}

// filenameLayout matches rollout-YYYY-MM-DDThh-mm-ss-<uuid>.jsonl.
const filenameLayout = "2006-01-02T15-04-05"

// NewRecorder creates a new rollout file under paths.GetRolloutsDir(),
// writes the SessionMeta (with captured git info, when inside a repo) as
// its first line, and starts the writer goroutine.
func NewRecorder(meta SessionMeta) (*Recorder, error) {
	day := meta.Timestamp.Format("2006/01/02")
	dir := filepath.Join(paths.GetRolloutsDir(), day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	filename := fmt.Sprintf("rollout-%s-%s.jsonl", meta.Timestamp.Format(filenameLayout), meta.ID.String())
	full := filepath.Join(dir, filename)

	lock := flock.New(full + ".lock")
	if ok, err := lock.TryLock(); err != nil || !ok {
		return nil, fmt.Errorf("acquire rollout lock: %w", err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	r := &Recorder{
		path:  full,
		meta:  meta,
		lock:  lock,
		file:  f,
		lines: make(chan RolloutLine, writerQueueDepth),
		done:  make(chan struct{}),
	}
	go r.run()

	var gitInfo *git.Info
	if info, ok := git.NewManager(meta.Cwd).CaptureInfo(); ok {
		gitInfo = &info
	}
	r.lines <- RolloutLine{Timestamp: meta.Timestamp, Type: RecordSessionMeta, Meta: &meta, Git: gitInfo}

	rec := dirIndexRecord{
		RecordType:      dirIndexRecordType,
		Cwd:             meta.Cwd,
		SessionFile:     full,
		CreatedTs:       timestampPtr(meta.Timestamp),
		Model:           meta.Model,
		LastUserSnippet: truncateSnippet(meta.Instructions),
	}
	if gitInfo != nil {
		rec.Branch = gitInfo.Branch
	}
	appendDirIndex(meta.Cwd, rec)
	return r, nil
}

// Path returns the rollout file this recorder writes.
func (r *Recorder) Path() string { return r.path }

// Meta returns the SessionMeta the recorder was opened with.
func (r *Recorder) Meta() SessionMeta { return r.meta }

func (r *Recorder) run() {
	defer close(r.done)
	enc := json.NewEncoder(r.file)
	for line := range r.lines {
		if err := enc.Encode(line); err != nil {
			r.mu.Lock()
			r.writeErr = err
			r.mu.Unlock()
			log.Printf("rollout: write failed (session continues in memory): %v", err)
			continue
		}
		r.file.Sync()
	}
}

// WriteErr reports the most recent write failure, if any. Rollout write
// failures never stop the session; callers may surface this at shutdown.
func (r *Recorder) WriteErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeErr
}

// RecordItem persists one ResponseItem, subject to the persistence policy
// filters, and feeds the per-directory index.
func (r *Recorder) RecordItem(item protocol.ResponseItem) {
	if !ShouldPersistResponseItem(item) || !ShouldPersistRolloutItem(item) {
		return
	}
	now := time.Now()
	r.lines <- RolloutLine{Timestamp: now, Type: RecordResponseItem, Item: &item}

	delta := 1
	rec := dirIndexRecord{
		RecordType:        dirIndexRecordType,
		Cwd:               r.meta.Cwd,
		SessionFile:       r.path,
		MessageCountDelta: &delta,
	}
	if item.IsUserMessage() {
		rec.ModifiedTs = timestampPtr(now)
		rec.LastUserSnippet = truncateSnippet(item.Text())
	}
	appendDirIndex(r.meta.Cwd, rec)
}

// RecordCompacted marks the point a compaction pass replaced a span of
// history with the given checkpoint summary.
func (r *Recorder) RecordCompacted(summaryText string) {
	r.lines <- RolloutLine{Timestamp: time.Now(), Type: RecordCompacted, Compacted: &Compacted{SummaryText: summaryText}}
}

// RecordState persists a full-replace UI state snapshot. Snapshots are
// monotonic: the writer only ever appends, and readers take the last one.
func (r *Recorder) RecordState(payload json.RawMessage) {
	r.lines <- RolloutLine{Timestamp: time.Now(), Type: RecordState, State: &StateSnapshot{Payload: payload}}
}

// Shutdown drains the writer queue, closes the file, and releases the lock.
func (r *Recorder) Shutdown() error {
	close(r.lines)
	<-r.done
	if err := r.file.Close(); err != nil {
		return err
	}
	return r.lock.Unlock()
}

func timestampPtr(t time.Time) *string {
	s := formatTimestamp(t)
	return &s
}
