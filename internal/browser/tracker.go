// Package browser backs the browser_* tool family: a chromedp-driven page
// manager plus a per-session tracker keyed by call/ordinal that records an
// action log with status codes and optional screenshots, surviving across
// browser_open/click/type calls within one session. browser_fetch is
// deliberately not tracked here.
package browser

import (
	"context"
	"regexp"
	"sync"
	"time"
)

// ActionKind discriminates one browser_* tool invocation.
type ActionKind string

const (
	ActionOpen       ActionKind = "open"
	ActionClick      ActionKind = "click"
	ActionType       ActionKind = "type"
	ActionScreenshot ActionKind = "screenshot"
)

// ActionLogEntry is one recorded browser_* call against a tracked page.
type ActionLogEntry struct {
	Ordinal    int
	CallID     string
	Kind       ActionKind
	URL        string
	Selector   string
	StatusCode int // 0 if none could be extracted
	Screenshot []byte
	Err        error
	At         time.Time
}

// leadingStatusCode extracts a status code only from a leading three-digit
// run in the tool result; codes embedded inside a JSON payload are not
// parsed out.
var leadingStatusCode = regexp.MustCompile(`^\s*(\d{3})\b`)

// Page is one tracked browser page within a session, identified by the
// call_id of the browser_open that created it.
type Page struct {
	CallID  string
	URL     string
	Actions []ActionLogEntry
}

// Tracker owns every Page opened during a session.
type Tracker struct {
	mgr *BrowserManager

	mu       sync.Mutex
	pages    map[string]*Page
	ordinal  int
}

func NewTracker(mgr *BrowserManager) *Tracker {
	return &Tracker{mgr: mgr, pages: map[string]*Page{}}
}

func (t *Tracker) nextOrdinal() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ordinal++
	return t.ordinal
}

func (t *Tracker) record(pageID string, entry ActionLogEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pages[pageID]
	if !ok {
		p = &Page{CallID: pageID}
		t.pages[pageID] = p
	}
	p.Actions = append(p.Actions, entry)
}

// Open navigates a fresh page tracked under pageID (typically the
// browser_open call_id) and records the action.
func (t *Tracker) Open(ctx context.Context, pageID, url string) error {
	entry := ActionLogEntry{Ordinal: t.nextOrdinal(), CallID: pageID, Kind: ActionOpen, URL: url, At: time.Now()}
	err := t.mgr.Navigate(ctx, url)
	entry.Err = err
	t.record(pageID, entry)
	t.mu.Lock()
	if p, ok := t.pages[pageID]; ok {
		p.URL = url
	}
	t.mu.Unlock()
	return err
}

func (t *Tracker) Click(ctx context.Context, pageID, selector string) error {
	t.mu.Lock()
	url := t.pages[pageID].urlOrEmpty()
	t.mu.Unlock()
	entry := ActionLogEntry{Ordinal: t.nextOrdinal(), CallID: pageID, Kind: ActionClick, URL: url, Selector: selector, At: time.Now()}
	err := t.mgr.Click(ctx, url, selector)
	entry.Err = err
	t.record(pageID, entry)
	return err
}

func (t *Tracker) Type(ctx context.Context, pageID, selector, text string) error {
	t.mu.Lock()
	url := t.pages[pageID].urlOrEmpty()
	t.mu.Unlock()
	entry := ActionLogEntry{Ordinal: t.nextOrdinal(), CallID: pageID, Kind: ActionType, URL: url, Selector: selector, At: time.Now()}
	err := t.mgr.Type(ctx, url, selector, text)
	entry.Err = err
	t.record(pageID, entry)
	return err
}

func (t *Tracker) Screenshot(ctx context.Context, pageID string) ([]byte, error) {
	t.mu.Lock()
	url := t.pages[pageID].urlOrEmpty()
	t.mu.Unlock()
	data, err := t.mgr.Screenshot(ctx, url)
	entry := ActionLogEntry{Ordinal: t.nextOrdinal(), CallID: pageID, Kind: ActionScreenshot, URL: url, Screenshot: data, Err: err, At: time.Now()}
	t.record(pageID, entry)
	return data, err
}

// ExtractStatusCode pulls the HTTP status out of a tool result string:
// only a leading three-digit run counts.
func ExtractStatusCode(resultText string) int {
	m := leadingStatusCode.FindStringSubmatch(resultText)
	if m == nil {
		return 0
	}
	code := 0
	for _, r := range m[1] {
		code = code*10 + int(r-'0')
	}
	return code
}

func (p *Page) urlOrEmpty() string {
	if p == nil {
		return ""
	}
	return p.URL
}

// ActionLog returns the recorded actions for pageID in call order.
func (t *Tracker) ActionLog(pageID string) []ActionLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pages[pageID]
	if !ok {
		return nil
	}
	out := make([]ActionLogEntry, len(p.Actions))
	copy(out, p.Actions)
	return out
}
