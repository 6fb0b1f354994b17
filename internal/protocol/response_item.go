package protocol

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ConversationId is an opaque 128-bit identifier generated per new session.
type ConversationId = uuid.UUID

// NewConversationId generates a fresh ConversationId.
func NewConversationId() ConversationId {
	return uuid.New()
}

// ContentItemType discriminates a ContentItem.
type ContentItemType string

const (
	ContentInputText  ContentItemType = "input_text"
	ContentOutputText ContentItemType = "output_text"
	ContentInputImage ContentItemType = "input_image"
)

// ContentItem is one block of message content.
type ContentItem struct {
	Type     ContentItemType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL string          `json:"image_url,omitempty"`
}

func TextItem(text string) ContentItem  { return ContentItem{Type: ContentInputText, Text: text} }
func OutputText(text string) ContentItem { return ContentItem{Type: ContentOutputText, Text: text} }
func InputImage(url string) ContentItem { return ContentItem{Type: ContentInputImage, ImageURL: url} }

// ReasoningSummary is one summary block of a Reasoning item.
type ReasoningSummary struct {
	Text string `json:"text"`
}

// ReasoningContentBlock is one optional raw content block of a Reasoning item.
type ReasoningContentBlock struct {
	Text string `json:"text"`
}

// ItemType discriminates ResponseItem variants.
type ItemType string

const (
	ItemMessage            ItemType = "message"
	ItemFunctionCall       ItemType = "function_call"
	ItemFunctionCallOutput ItemType = "function_call_output"
	ItemCustomToolCall     ItemType = "custom_tool_call"
	ItemCustomToolCallOut  ItemType = "custom_tool_call_output"
	ItemReasoning          ItemType = "reasoning"
	ItemLocalShellCall     ItemType = "local_shell_call"
	ItemWebSearchCall      ItemType = "web_search_call"
	ItemOther              ItemType = "other"
)

// ResponseItem is one tagged-variant conversation item.
// Every concrete variant lives on the same struct and Type selects which
// fields are meaningful; unused fields are omitted on the wire. ItemOther,
// OtherType and RawPayload are declared for unknown variants, but decoding
// does not map onto them: an unrecognised type string is kept as-is in Type
// and any fields this struct does not declare are dropped.
type ResponseItem struct {
	Type ItemType `json:"type"`

	// Message
	Role    string        `json:"role,omitempty"`
	Content []ContentItem `json:"content,omitempty"`

	// FunctionCall / CustomToolCall / LocalShellCall
	Name      string   `json:"name,omitempty"`
	Arguments string   `json:"arguments,omitempty"`
	CallID    string   `json:"call_id,omitempty"`
	Command   []string `json:"command,omitempty"`

	// FunctionCallOutput / CustomToolCallOutput
	Output  string `json:"output,omitempty"`
	Success *bool  `json:"success,omitempty"`

	// Reasoning
	Summary  []ReasoningSummary      `json:"summary,omitempty"`
	Reasoning []ReasoningContentBlock `json:"reasoning_content,omitempty"`

	// WebSearchCall
	Query string `json:"query,omitempty"`

	// Other: forward-compatible unknown variant.
	OtherType  string          `json:"other_type,omitempty"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}

func NewMessage(role string, content ...ContentItem) ResponseItem {
	return ResponseItem{Type: ItemMessage, Role: role, Content: content}
}

func NewFunctionCall(callID, name, arguments string) ResponseItem {
	return ResponseItem{Type: ItemFunctionCall, CallID: callID, Name: name, Arguments: arguments}
}

func NewFunctionCallOutput(callID, output string, success bool) ResponseItem {
	return ResponseItem{Type: ItemFunctionCallOutput, CallID: callID, Output: output, Success: &success}
}

// IsUserMessage reports whether this item is a user-authored message — the
// first one in a conversation is the "goal" item, pinned by compaction.
func (r ResponseItem) IsUserMessage() bool {
	return r.Type == ItemMessage && r.Role == "user"
}

// Text concatenates all text-bearing content blocks of a Message item.
func (r ResponseItem) Text() string {
	var out string
	for _, c := range r.Content {
		if c.Type == ContentInputText || c.Type == ContentOutputText {
			out += c.Text
		}
	}
	return out
}

// ApprovalPolicy controls when the safety gate auto-approves vs. asks the
// user.
type ApprovalPolicy string

const (
	ApprovalUnlessTrusted ApprovalPolicy = "unless-trusted"
	ApprovalOnFailure     ApprovalPolicy = "on-failure"
	ApprovalOnRequest     ApprovalPolicy = "on-request"
	ApprovalNever         ApprovalPolicy = "never"
)

// SandboxPolicyKind selects the write/network posture for command execs.
type SandboxPolicyKind string

const (
	SandboxReadOnly         SandboxPolicyKind = "read-only"
	SandboxWorkspaceWrite   SandboxPolicyKind = "workspace-write"
	SandboxDangerFullAccess SandboxPolicyKind = "danger-full-access"
)

// SandboxPolicy is the resolved write/network posture for the session.
type SandboxPolicy struct {
	Kind           SandboxPolicyKind `json:"kind"`
	WritableRoots  []string          `json:"writable_roots,omitempty"`
	NetworkAllowed bool              `json:"network_allowed,omitempty"`
}

// FileChangeKind discriminates the FileChange variant.
type FileChangeKind string

const (
	FileAdd    FileChangeKind = "add"
	FileDelete FileChangeKind = "delete"
	FileUpdate FileChangeKind = "update"
)

// FileChange is one entry of a structured patch.
type FileChange struct {
	Kind        FileChangeKind `json:"kind"`
	Content     string         `json:"content,omitempty"`      // Add
	UnifiedDiff string         `json:"unified_diff,omitempty"` // Update
	MovePath    string         `json:"move_path,omitempty"`    // Update, optional rename
}

// Patch is a structured patch: path -> FileChange.
type Patch map[string]FileChange
