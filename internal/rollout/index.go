package rollout

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/riftlab/turnengine/internal/paths"
)

const dirIndexRecordType = "dir_index"

// dirIndexRecord is one JSONL line of a per-working-directory index file.
// Two shapes of line share this struct: a head line written at session
// start (created_ts, model, branch, snippet) and delta lines appended as
// items arrive (message_count_delta, and modified_ts/last_user_snippet for
// user messages). A reader aggregates per session_file — it never rewrites
// a line in place, so appends stay O(1) regardless of session length.
type dirIndexRecord struct {
	RecordType        string  `json:"record_type"`
	Cwd               string  `json:"cwd"`
	SessionFile       string  `json:"session_file"`
	CreatedTs         *string `json:"created_ts,omitempty"`
	ModifiedTs        *string `json:"modified_ts,omitempty"`
	MessageCountDelta *int    `json:"message_count_delta,omitempty"`
	Model             string  `json:"model,omitempty"`
	Branch            string  `json:"branch,omitempty"`
	LastUserSnippet   string  `json:"last_user_snippet,omitempty"`
}

// appendDirIndex appends one record to cwd's index file. Index writes are
// best-effort: a failure is logged and otherwise ignored, since the index
// is a derived artifact the rollout files themselves can always rebuild.
func appendDirIndex(cwd string, rec dirIndexRecord) {
	indexPath := paths.GetDirIndexPath(cwd)
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		log.Printf("rollout: dir index mkdir: %v", err)
		return
	}
	lock := flock.New(indexPath + ".lock")
	if err := lock.Lock(); err != nil {
		log.Printf("rollout: dir index lock: %v", err)
		return
	}
	defer lock.Unlock()

	f, err := os.OpenFile(indexPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("rollout: dir index open: %v", err)
		return
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(rec); err != nil {
		log.Printf("rollout: dir index write: %v", err)
	}
}

// DirIndexEntry is one session's aggregated view across its index lines.
type DirIndexEntry struct {
	Cwd             string
	SessionFile     string
	CreatedTs       time.Time
	ModifiedTs      time.Time
	MessageCount    int
	Model           string
	Branch          string
	LastUserSnippet string
}

// ReadDirIndex aggregates cwd's index file into one entry per session, in
// first-seen order: message_count_delta lines are summed, modified_ts and
// last_user_snippet take the most recent non-empty value.
func ReadDirIndex(cwd string) ([]DirIndexEntry, error) {
	indexPath := paths.GetDirIndexPath(cwd)
	f, err := os.Open(indexPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	byFile := map[string]*DirIndexEntry{}
	var order []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec dirIndexRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.RecordType != dirIndexRecordType || rec.SessionFile == "" {
			continue
		}
		entry, ok := byFile[rec.SessionFile]
		if !ok {
			entry = &DirIndexEntry{Cwd: rec.Cwd, SessionFile: rec.SessionFile}
			byFile[rec.SessionFile] = entry
			order = append(order, rec.SessionFile)
		}
		if rec.CreatedTs != nil {
			if t, err := parseTimestamp(*rec.CreatedTs); err == nil {
				entry.CreatedTs = t
			}
		}
		if rec.ModifiedTs != nil {
			if t, err := parseTimestamp(*rec.ModifiedTs); err == nil {
				entry.ModifiedTs = t
			}
		}
		if rec.MessageCountDelta != nil {
			entry.MessageCount += *rec.MessageCountDelta
		}
		if rec.Model != "" {
			entry.Model = rec.Model
		}
		if rec.Branch != "" {
			entry.Branch = rec.Branch
		}
		if rec.LastUserSnippet != "" {
			entry.LastUserSnippet = rec.LastUserSnippet
		}
	}

	out := make([]DirIndexEntry, 0, len(order))
	for _, p := range order {
		out = append(out, *byFile[p])
	}
	return out, scanner.Err()
}
