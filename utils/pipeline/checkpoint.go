package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kris-hansen/metagent/utils/config"
)

// Sink persists per-run state snapshots keyed by execution id. Sinks are
// pluggable: in-memory for tests and embedding, file-backed for
// durability.
type Sink interface {
	Save(executionID string, state *State) error
	Load(executionID string) (*State, error)
}

// MemorySink keeps snapshots in process memory. It is the default sink.
type MemorySink struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

// NewMemorySink creates an empty in-memory checkpoint sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{snapshots: make(map[string][]byte)}
}

// Save stores a deep snapshot of the state.
func (m *MemorySink) Save(executionID string, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[executionID] = data
	return nil
}

// Load returns the stored snapshot, or nil when none exists.
func (m *MemorySink) Load(executionID string) (*State, error) {
	m.mu.RLock()
	data, ok := m.snapshots[executionID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// FileSink persists snapshots as JSON files under a directory, one file
// per execution id.
type FileSink struct {
	dir string
}

// NewFileSink creates a file-backed checkpoint sink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

func (f *FileSink) path(executionID string) string {
	return filepath.Join(f.dir, fmt.Sprintf("%s.json", executionID))
}

// Save writes the snapshot to disk, creating the directory as needed.
func (f *FileSink) Save(executionID string, state *State) error {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(f.path(executionID), data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}

	config.DebugLog("[Checkpoint] Saved state for execution %s (%s)", executionID, state.ExecutionStatus)
	return nil
}

// Load reads a snapshot from disk, or returns nil when none exists.
func (f *FileSink) Load(executionID string) (*State, error) {
	data, err := os.ReadFile(f.path(executionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint (file may be corrupted): %w", err)
	}
	return &state, nil
}
