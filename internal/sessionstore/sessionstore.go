// Package sessionstore owns named, durable conversations between an
// agent and its provider: a transcript.jsonl file plus meta.json
// bookkeeping, keyed by "<scope>:<slug>" session keys.
package sessionstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"opengoat/internal/domain"
	"opengoat/internal/ports"
)

// PrepareOptions carries the optional fields accepted by PrepareSession.
type PrepareOptions struct {
	SessionRef  string
	ForceNew    bool
	ProjectPath string
}

// Store implements SessionStore.
type Store struct {
	fs    ports.FilesystemPort
	paths ports.PathPort
	clock ports.Clock

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(fs ports.FilesystemPort, paths ports.PathPort, clock ports.Clock) *Store {
	return &Store{fs: fs, paths: paths, clock: clock, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) lockFor(sessionKey string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[sessionKey]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionKey] = l
	}
	return l
}

func slugFor(sessionKey string) string {
	return strings.ReplaceAll(sessionKey, ":", "_")
}

func defaultSessionKey(agentID string) string {
	return fmt.Sprintf("agent:%s:main", agentID)
}

func (s *Store) sessionDir(agentID, sessionKey string) string {
	return s.paths.SessionDir(agentID, slugFor(sessionKey))
}

func (s *Store) metaPath(agentID, sessionKey string) string {
	return filepath.Join(s.sessionDir(agentID, sessionKey), "meta.json")
}

func (s *Store) transcriptPath(agentID, sessionKey string) string {
	return filepath.Join(s.sessionDir(agentID, sessionKey), "transcript.jsonl")
}

func (s *Store) readMeta(agentID, sessionKey string) (domain.Session, bool) {
	path := s.metaPath(agentID, sessionKey)
	if !s.fs.Exists(path) {
		return domain.Session{}, false
	}
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return domain.Session{}, false
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domain.Session{}, false
	}
	return sess, true
}

func (s *Store) writeMeta(sess domain.Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	return s.fs.WriteFile(s.metaPath(sess.AgentID, sess.SessionKey), data, 0o644)
}

func scopeOf(sessionKey string) domain.SessionScope {
	prefix, _, ok := strings.Cut(sessionKey, ":")
	if !ok {
		return domain.ScopeAgent
	}
	switch domain.SessionScope(prefix) {
	case domain.ScopeWorkspace:
		return domain.ScopeWorkspace
	case domain.ScopeProject:
		return domain.ScopeProject
	default:
		return domain.ScopeAgent
	}
}

// PrepareSession ensures the named session exists, allocating a fresh
// sessionId when forceNew is set or no session exists yet, and
// resolves the working directory from the provider's runtime profile.
func (s *Store) PrepareSession(agent domain.Agent, profile domain.RuntimeProfile, opts PrepareOptions) (domain.SessionRunInfo, error) {
	sessionKey := opts.SessionRef
	if sessionKey == "" {
		sessionKey = defaultSessionKey(agent.ID)
	}

	lock := s.lockFor(agent.ID + "/" + sessionKey)
	lock.Lock()
	defer lock.Unlock()

	cwd := agent.ID
	switch profile.WorkingDirPolicy {
	case domain.WorkingDirAgentWorkspace:
		cwd = s.paths.WorkspacePath(agent.ID)
	default:
		if opts.ProjectPath != "" {
			cwd = opts.ProjectPath
		} else {
			cwd = s.paths.WorkspacePath(agent.ID)
		}
	}

	existing, found := s.readMeta(agent.ID, sessionKey)
	if found && !opts.ForceNew {
		return domain.SessionRunInfo{Session: existing, Cwd: cwd, Created: false}, nil
	}

	sessionID := sessionKey
	if opts.ForceNew {
		sessionID = fmt.Sprintf("%s-%d", sessionKey, s.clock.Now().UnixNano())
	}

	dir := s.sessionDir(agent.ID, sessionKey)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return domain.SessionRunInfo{}, domain.WrapError(domain.KindFatal, "create session dir", err)
	}

	sess := domain.Session{
		SessionKey:     sessionKey,
		Scope:          scopeOf(sessionKey),
		AgentID:        agent.ID,
		SessionID:      sessionID,
		Title:          sessionKey,
		UpdatedAt:      s.clock.Now().UnixMilli(),
		TranscriptPath: s.transcriptPath(agent.ID, sessionKey),
		WorkspacePath:  cwd,
	}
	if found {
		sess.InputChars = existing.InputChars
		sess.OutputChars = existing.OutputChars
		sess.TotalChars = existing.TotalChars
		sess.CompactionCount = existing.CompactionCount
		sess.Title = existing.Title
	}
	if err := s.writeMeta(sess); err != nil {
		return domain.SessionRunInfo{}, domain.WrapError(domain.KindFatal, "write session meta", err)
	}
	return domain.SessionRunInfo{Session: sess, Cwd: cwd, Created: !found || opts.ForceNew}, nil
}

// AppendTranscript appends a line to the session transcript and bumps
// the running character counters, persisting meta.json afterward.
func (s *Store) AppendTranscript(agentID, sessionKey string, entry domain.TranscriptEntry) error {
	lock := s.lockFor(agentID + "/" + sessionKey)
	lock.Lock()
	defer lock.Unlock()

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	path := s.transcriptPath(agentID, sessionKey)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}

	sess, ok := s.readMeta(agentID, sessionKey)
	if !ok {
		return nil
	}
	n := len(entry.Content)
	switch entry.Role {
	case "user":
		sess.InputChars += n
	default:
		sess.OutputChars += n
	}
	sess.TotalChars = sess.InputChars + sess.OutputChars
	if entry.Type == domain.EntryCompaction {
		sess.CompactionCount++
	}
	sess.UpdatedAt = s.clock.Now().UnixMilli()
	return s.writeMeta(sess)
}

// History reads transcript entries for a session, most recent last,
// optionally excluding compaction markers and capped at limit (0 = all).
func (s *Store) History(agentID, sessionKey string, limit int, includeCompaction bool) ([]domain.TranscriptEntry, error) {
	path := s.transcriptPath(agentID, sessionKey)
	if !s.fs.Exists(path) {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []domain.TranscriptEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e domain.TranscriptEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		if !includeCompaction && e.Type == domain.EntryCompaction {
			continue
		}
		entries = append(entries, e)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, scanner.Err()
}

// List returns all known sessions, optionally filtered to one agent.
func (s *Store) List(agentID string) ([]domain.Session, error) {
	pattern := s.paths.Join("sessions", "*", "*", "meta.json")
	if agentID != "" {
		pattern = s.paths.Join("sessions", agentID, "*", "meta.json")
	}
	paths, err := s.fs.Glob(pattern)
	if err != nil {
		return nil, err
	}
	var out []domain.Session
	for _, p := range paths {
		data, err := s.fs.ReadFile(p)
		if err != nil {
			continue
		}
		var sess domain.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// Rename updates a session's display title.
func (s *Store) Rename(agentID, sessionKey, title string) error {
	lock := s.lockFor(agentID + "/" + sessionKey)
	lock.Lock()
	defer lock.Unlock()

	sess, ok := s.readMeta(agentID, sessionKey)
	if !ok {
		return domain.NotFoundf("session %q not found for agent %q", sessionKey, agentID)
	}
	sess.Title = title
	return s.writeMeta(sess)
}

// Remove deletes a session's directory entirely.
func (s *Store) Remove(agentID, sessionKey string) error {
	lock := s.lockFor(agentID + "/" + sessionKey)
	lock.Lock()
	defer lock.Unlock()
	return s.fs.RemoveAll(s.sessionDir(agentID, sessionKey))
}

// LastActivityMs implements taskcron.LastActivity: the most recent
// updatedAt across all of an agent's sessions.
func (s *Store) LastActivityMs(agentID string) (int64, bool) {
	sessions, err := s.List(agentID)
	if err != nil || len(sessions) == 0 {
		return 0, false
	}
	var latest int64
	for _, sess := range sessions {
		if sess.UpdatedAt > latest {
			latest = sess.UpdatedAt
		}
	}
	return latest, true
}
