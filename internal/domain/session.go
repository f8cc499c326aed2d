package domain

// SessionScope tags the three sessionKey variants; the sum type is
// exhaustively matched at every call site.
type SessionScope string

const (
	ScopeAgent     SessionScope = "agent"
	ScopeWorkspace SessionScope = "workspace"
	ScopeProject   SessionScope = "project"
)

// Session is a named, durable conversation with a provider.
type Session struct {
	SessionKey       string       `json:"sessionKey"`
	Scope            SessionScope `json:"scope"`
	AgentID          string       `json:"agentId"`
	SessionID        string       `json:"sessionId"`
	Title            string       `json:"title"`
	UpdatedAt        int64        `json:"updatedAt"`
	TranscriptPath   string       `json:"transcriptPath"`
	WorkspacePath    string       `json:"workspacePath"`
	InputChars       int          `json:"inputChars"`
	OutputChars      int          `json:"outputChars"`
	TotalChars       int          `json:"totalChars"`
	CompactionCount  int          `json:"compactionCount"`
}

// TranscriptEntryType tags the two transcript line shapes.
type TranscriptEntryType string

const (
	EntryMessage    TranscriptEntryType = "message"
	EntryCompaction TranscriptEntryType = "compaction"
)

// TranscriptEntry is one JSON-line in a session's transcript.jsonl.
type TranscriptEntry struct {
	Type      TranscriptEntryType `json:"type"`
	Role      string              `json:"role,omitempty"`
	Content   string              `json:"content"`
	Timestamp int64               `json:"timestamp"`
}

// SessionRunInfo is returned by prepareSession: the resolved session
// plus the working directory the provider should be invoked in.
type SessionRunInfo struct {
	Session Session
	Cwd     string
	Created bool
}
