// Package metadata persists and recovers the pipeline's durable
// non-record state: placement decisions, field statistics, and summary
// counters. Every file is written via write-to-temp + rename so a crash
// mid-write never leaves a half-written file behind. See spec.md §6.
package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/schemaforge/schemaforge/internal/classify"
	"github.com/schemaforge/schemaforge/internal/stats"
)

const (
	decisionsFile  = "decisions.json"
	fieldStatsFile = "field_stats.json"
	stateFile      = "state.json"
	stateVersion   = 1
)

// State is the contents of state.json.
type State struct {
	TotalRecordsProcessed int64     `json:"total_records_processed"`
	LastFlushTime         time.Time `json:"last_flush_time"`
	Version               int       `json:"version"`
}

// Store reads and writes the three metadata files under dir.
type Store struct {
	dir string
	log *zap.SugaredLogger
}

// New returns a Store rooted at dir. dir is created if it does not exist.
func New(dir string, log *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir %s: %w", dir, err)
	}
	return &Store{dir: dir, log: log}, nil
}

// SaveDecisions atomically writes decisions.json.
func (s *Store) SaveDecisions(decisions map[string]classify.PlacementDecision) error {
	return s.writeAtomic(decisionsFile, decisions)
}

// SaveFieldStats atomically writes field_stats.json.
func (s *Store) SaveFieldStats(fields map[string]*stats.FieldStats) error {
	return s.writeAtomic(fieldStatsFile, fields)
}

// SaveState atomically writes state.json.
func (s *Store) SaveState(st State) error {
	st.Version = stateVersion
	return s.writeAtomic(stateFile, st)
}

func (s *Store) writeAtomic(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	target := filepath.Join(s.dir, name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("rename temp file into place for %s: %w", name, err)
	}
	return nil
}

// LoadDecisions reads decisions.json. A missing or unreadable file is
// treated as cold start: (nil, nil) is returned rather than an error, per
// spec.md §9's "metadata read failure on startup" rule.
func (s *Store) LoadDecisions() (map[string]classify.PlacementDecision, error) {
	var decisions map[string]classify.PlacementDecision
	ok, err := s.readIfPresent(decisionsFile, &decisions)
	if err != nil {
		s.log.Warnw("failed to load decisions.json; starting cold", "error", err)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	return decisions, nil
}

// LoadFieldStats reads field_stats.json, cold-starting on any failure.
func (s *Store) LoadFieldStats() (map[string]*stats.FieldStats, error) {
	var fields map[string]*stats.FieldStats
	ok, err := s.readIfPresent(fieldStatsFile, &fields)
	if err != nil {
		s.log.Warnw("failed to load field_stats.json; starting cold", "error", err)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	return fields, nil
}

// LoadState reads state.json, cold-starting on any failure.
func (s *Store) LoadState() (State, error) {
	var st State
	ok, err := s.readIfPresent(stateFile, &st)
	if err != nil {
		s.log.Warnw("failed to load state.json; starting cold", "error", err)
		return State{}, nil
	}
	if !ok {
		return State{}, nil
	}
	return st, nil
}

func (s *Store) readIfPresent(name string, v interface{}) (bool, error) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}
