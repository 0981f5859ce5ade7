package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/store"
)

// DocumentVersion is the current version of the session file format.
const DocumentVersion = 1

// Document is the on-disk session envelope.
type Document struct {
	// Version is the file format version.
	Version int `json:"version"`

	// SavedAt is when the document was written.
	SavedAt time.Time `json:"saved_at"`

	// SavedBy identifies the surface context that wrote the document.
	SavedBy string `json:"saved_by,omitempty"`

	// Session is the session payload.
	Session store.Session `json:"session"`
}

// Checkpoint describes one snapshot file in session history.
type Checkpoint struct {
	// Path is the snapshot file location.
	Path string `json:"path"`

	// SavedAt is the snapshot timestamp, parsed from the file name.
	SavedAt time.Time `json:"saved_at"`
}

// checkpointStamp is the timestamp layout embedded in snapshot file
// names. It sorts lexically in time order.
const checkpointStamp = "20060102-150405.000"

// SessionStore manages persistence of one session to a data directory.
// The live document is <dir>/<sessionID>.json; snapshots live under
// <dir>/history/<sessionID>-<timestamp>.json.
type SessionStore struct {
	mu  sync.Mutex
	dir string
}

// NewSessionStore creates a session store rooted at dir.
func NewSessionStore(dir string) *SessionStore {
	return &SessionStore{dir: dir}
}

func (s *SessionStore) livePath(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

func (s *SessionStore) historyDir() string {
	return filepath.Join(s.dir, "history")
}

// Save writes the live session document. The write goes through a
// temporary file and rename so a crash mid-write cannot corrupt the
// previous document.
func (s *SessionStore) Save(session store.Session, savedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.encode(session, savedBy)
	if err != nil {
		return err
	}
	return s.writeAtomic(s.livePath(session.ID), data)
}

// Snapshot writes a timestamped checkpoint without touching the live
// document.
func (s *SessionStore) Snapshot(session store.Session, savedBy string) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.encode(session, savedBy)
	if err != nil {
		return Checkpoint{}, err
	}

	now := time.Now()
	name := fmt.Sprintf("%s-%s.json", session.ID, now.UTC().Format(checkpointStamp))
	path := filepath.Join(s.historyDir(), name)
	if err := s.writeAtomic(path, data); err != nil {
		return Checkpoint{}, err
	}
	return Checkpoint{Path: path, SavedAt: now}, nil
}

// Load reads the live session document.
// Returns nil, nil if no document exists for the session.
func (s *SessionStore) Load(sessionID string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read(s.livePath(sessionID))
}

// LoadCheckpoint reads one snapshot document.
func (s *SessionStore) LoadCheckpoint(cp Checkpoint) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(cp.Path)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("checkpoint %s: %w", cp.Path, os.ErrNotExist)
	}
	return doc, nil
}

// Checkpoints lists the session's snapshots, oldest first.
func (s *SessionStore) Checkpoints(sessionID string) ([]Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.historyDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	prefix := sessionID + "-"
	var cps []Checkpoint
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")
		savedAt, err := time.ParseInLocation(checkpointStamp, stamp, time.UTC)
		if err != nil {
			// Foreign file in the history directory.
			continue
		}
		cps = append(cps, Checkpoint{
			Path:    filepath.Join(s.historyDir(), name),
			SavedAt: savedAt,
		})
	}

	sort.Slice(cps, func(i, j int) bool { return cps[i].SavedAt.Before(cps[j].SavedAt) })
	return cps, nil
}

// Prune removes the oldest snapshots so at most keep remain.
func (s *SessionStore) Prune(sessionID string, keep int) error {
	cps, err := s.Checkpoints(sessionID)
	if err != nil {
		return err
	}
	if keep < 0 {
		keep = 0
	}
	if len(cps) <= keep {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cp := range cps[:len(cps)-keep] {
		if err := os.Remove(cp.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Clear removes the live document. Snapshots are kept.
func (s *SessionStore) Clear(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.livePath(sessionID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *SessionStore) encode(session store.Session, savedBy string) ([]byte, error) {
	doc := Document{
		Version: DocumentVersion,
		SavedAt: time.Now(),
		SavedBy: savedBy,
		Session: session,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode session %q: %w", session.ID, err)
	}
	return data, nil
}

func (s *SessionStore) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func (s *SessionStore) read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}
