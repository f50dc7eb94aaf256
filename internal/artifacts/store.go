// Package artifacts persists intermediate workflow outputs (snapshots,
// discovery and extraction results) as JSON files for debugging. Writes are
// best-effort: the workflow never fails because an artifact could not be
// written.
package artifacts

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Well-known artifact names written during one run.
const (
	SnapshotFile          = "snapshot.json"
	PostClickSnapshotFile = "post_click_snapshot.json"
	LastSnapshotFile      = "last_snapshot.json"
	ElementDiscoveryFile  = "element_discovery.json"
	ReviewExtractionFile  = "review_extraction.json"
	ReviewAnalysisFile    = "review_analysis.json"
)

const (
	// MaxRotatedRuns caps how many run directories are kept.
	MaxRotatedRuns = 3
	// DefaultDir is used when no artifact directory is configured.
	DefaultDir = "data/runs"

	runDirPrefix = "run_"
)

// LoadMoreSnapshotFile returns the artifact name for the snapshot taken
// after the Nth pagination click.
func LoadMoreSnapshotFile(iteration int) string {
	return fmt.Sprintf("load_more_snapshot_%d.json", iteration)
}

// Store writes one run's artifacts into a dedicated directory. A nil *Store
// is valid and discards everything, so callers need no enabled checks.
type Store struct {
	mu     sync.Mutex
	runDir string
}

// NewStore creates a fresh per-run directory under baseDir, rotating out the
// oldest runs so at most MaxRotatedRuns remain.
func NewStore(baseDir, runID string) (*Store, error) {
	if baseDir == "" {
		baseDir = DefaultDir
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	if err := rotate(baseDir); err != nil {
		return nil, fmt.Errorf("rotate runs: %w", err)
	}

	runDir := filepath.Join(baseDir, fmt.Sprintf("%s%s_%d", runDirPrefix, runID, time.Now().UnixMilli()))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, err
	}
	return &Store{runDir: runDir}, nil
}

// Dir returns the run directory, or "" for a nil store.
func (s *Store) Dir() string {
	if s == nil {
		return ""
	}
	return s.runDir
}

// Save writes value as indented JSON under name. Failures are logged only.
func (s *Store) Save(name string, value any) {
	if s == nil {
		return
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		log.Printf("artifact %s: serialization failed: %v", name, err)
		return
	}
	s.write(name, data)
}

// SaveRaw writes already-serialized text under name. Failures are logged
// only.
func (s *Store) SaveRaw(name, text string) {
	if s == nil {
		return
	}
	s.write(name, []byte(text))
}

func (s *Store) write(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.runDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("artifact %s: write failed: %v", name, err)
	}
}

// rotate keeps only the newest MaxRotatedRuns-1 run directories, making room
// for the run about to start.
func rotate(baseDir string) error {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return err
	}

	var runs []struct {
		Name string
		Time time.Time
	}
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) < len(runDirPrefix) || e.Name()[:len(runDirPrefix)] != runDirPrefix {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		runs = append(runs, struct {
			Name string
			Time time.Time
		}{e.Name(), info.ModTime()})
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Time.After(runs[j].Time)
	})

	if len(runs) >= MaxRotatedRuns {
		for i := MaxRotatedRuns - 1; i < len(runs); i++ {
			_ = os.RemoveAll(filepath.Join(baseDir, runs[i].Name))
		}
	}
	return nil
}
