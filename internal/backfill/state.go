package backfill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// DefaultStatePath is where progress is kept between runs.
const DefaultStatePath = "~/.vouch/backfill-state.json"

// BackfillState tracks progress for resumable backfill runs.
type BackfillState struct {
	StartedAt          time.Time `json:"started_at"`
	LastProcessedAt    time.Time `json:"last_processed_at"`
	FilesProcessed     []string  `json:"files_processed"`
	FilesRemaining     int       `json:"files_remaining"`
	SnapshotsProcessed int       `json:"snapshots_processed"`
	AttestationsIssued int       `json:"attestations_issued"`
	Errors             []string  `json:"errors"`

	path string // not serialized
}

// LoadState loads the backfill state from path, or starts a new one.
func LoadState(path string) (*BackfillState, error) {
	p := expandHome(path)

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return &BackfillState{
				StartedAt: time.Now().UTC(),
				path:      p,
			}, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s BackfillState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	s.path = p
	return &s, nil
}

// Save writes the state next to its final path and renames it into place, so
// an interrupted save never leaves a truncated file behind.
func (s *BackfillState) Save() error {
	s.LastProcessedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// Path is where the state is saved.
func (s *BackfillState) Path() string {
	return s.path
}

func (s *BackfillState) IsProcessed(path string) bool {
	return slices.Contains(s.FilesProcessed, path)
}

func (s *BackfillState) MarkProcessed(path string) {
	s.FilesProcessed = append(s.FilesProcessed, path)
}

func (s *BackfillState) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
