package rollout

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/riftlab/turnengine/internal/paths"
	"github.com/riftlab/turnengine/internal/protocol"
)

// MaxScanFiles bounds how many rollout files GetConversations will consider
// before giving up and reporting ReachedScanCap, so a home directory with
// years of history doesn't make one listing request scan unboundedly.
const MaxScanFiles = 10_000

// headScanLines is how many leading records are read from a candidate file
// to extract its meta and first user snippet.
const headScanLines = 10

// Page is one page of a conversation listing.
type Page struct {
	Items          []ConversationSummary
	NextCursor     *Cursor
	ReachedScanCap bool
}

// rolloutFile is one discovered session file, keyed by the timestamp and
// conversation id parsed from its name.
type rolloutFile struct {
	path      string
	timestamp time.Time
	id        protocol.ConversationId
}

// parseRolloutFilename extracts the timestamp and uuid from a
// rollout-YYYY-MM-DDThh-mm-ss-<uuid>.jsonl name.
func parseRolloutFilename(name string) (rolloutFile, bool) {
	if !strings.HasPrefix(name, "rollout-") || !strings.HasSuffix(name, ".jsonl") {
		return rolloutFile{}, false
	}
	core := strings.TrimSuffix(strings.TrimPrefix(name, "rollout-"), ".jsonl")
	// The timestamp is exactly len(filenameLayout) characters, followed by
	// "-" and the uuid.
	if len(core) < len(filenameLayout)+2 {
		return rolloutFile{}, false
	}
	ts, err := time.Parse(filenameLayout, core[:len(filenameLayout)])
	if err != nil {
		return rolloutFile{}, false
	}
	id, err := uuid.Parse(core[len(filenameLayout)+1:])
	if err != nil {
		return rolloutFile{}, false
	}
	return rolloutFile{timestamp: ts, id: id}, true
}

// GetConversations lists recorded sessions newest first, strictly ordered
// by (timestamp desc, uuid desc) as parsed from each filename, paging via
// cursor (nil for the first page). allowedSources, when non-empty,
// restricts results to sessions whose SessionMeta.Source matches.
//
// The walk visits year/month/day directories in descending name order and
// reads only the head of each candidate file, so listing cost is
// proportional to the page, not to total history. Scanning stops after
// MaxScanFiles files past the cursor; ReachedScanCap tells the caller to
// continue from NextCursor, which then points at the last file scanned.
func GetConversations(pageSize int, cursor *Cursor, allowedSources []string) (Page, error) {
	root := paths.GetRolloutsDir()
	var page Page
	scanned := 0

	var last *rolloutFile
	for _, day := range descendingDayDirs(root) {
		files := descendingRolloutFiles(day)
		for i, f := range files {
			if cursor != nil && !olderThanCursor(f, cursor) {
				continue
			}
			if scanned >= MaxScanFiles {
				page.ReachedScanCap = true
				if last != nil {
					page.NextCursor = &Cursor{Timestamp: last.timestamp, ID: last.id}
				}
				return page, nil
			}
			scanned++
			last = &files[i]

			summary, ok := readHeadSummary(f)
			if !ok {
				continue
			}
			if !sourceAllowed(summary.Source, allowedSources) {
				continue
			}
			page.Items = append(page.Items, summary)
			if len(page.Items) >= pageSize {
				page.NextCursor = &Cursor{Timestamp: f.timestamp, ID: f.id}
				return page, nil
			}
		}
	}
	return page, nil
}

// descendingDayDirs returns every <root>/YYYY/MM/DD directory, newest first.
func descendingDayDirs(root string) []string {
	var days []string
	for _, year := range descendingSubdirs(root) {
		for _, month := range descendingSubdirs(year) {
			days = append(days, descendingSubdirs(month)...)
		}
	}
	return days
}

func descendingSubdirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, filepath.Join(dir, n))
	}
	return out
}

// descendingRolloutFiles lists a day directory's rollout files sorted by
// (timestamp desc, uuid desc).
func descendingRolloutFiles(dir string) []rolloutFile {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []rolloutFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, ok := parseRolloutFilename(e.Name())
		if !ok {
			continue
		}
		f.path = filepath.Join(dir, e.Name())
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].timestamp.Equal(files[j].timestamp) {
			return files[i].timestamp.After(files[j].timestamp)
		}
		return files[i].id.String() > files[j].id.String()
	})
	return files
}

// olderThanCursor reports whether f sorts strictly after cursor in the
// (timestamp desc, uuid desc) ordering, i.e. belongs on a later page.
func olderThanCursor(f rolloutFile, cursor *Cursor) bool {
	if f.timestamp.Before(cursor.Timestamp) {
		return true
	}
	return f.timestamp.Equal(cursor.Timestamp) && f.id.String() < cursor.ID.String()
}

func sourceAllowed(source string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == source {
			return true
		}
	}
	return false
}

// readHeadSummary reads the first few records of a rollout file: the
// SessionMeta line plus, when present among the head records, the first
// user message as the snippet.
func readHeadSummary(f rolloutFile) (ConversationSummary, bool) {
	file, err := os.Open(f.path)
	if err != nil {
		return ConversationSummary{}, false
	}
	defer file.Close()

	summary := ConversationSummary{ID: f.id, Path: f.path, Timestamp: f.timestamp}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	sawMeta := false
	for i := 0; i < headScanLines && scanner.Scan(); i++ {
		var line RolloutLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		switch {
		case line.Type == RecordSessionMeta && line.Meta != nil:
			sawMeta = true
			summary.Cwd = line.Meta.Cwd
			summary.Source = line.Meta.Source
			if line.Meta.Instructions != "" {
				summary.Snippet = truncateSnippet(line.Meta.Instructions)
			}
		case line.Type == RecordResponseItem && line.Item != nil && line.Item.IsUserMessage() && summary.Snippet == "":
			summary.Snippet = truncateSnippet(line.Item.Text())
		}
	}
	return summary, sawMeta
}
