package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ocx/gridwalk/internal/metrics"
)

// fileRecord is the on-disk JSON envelope. LOAD_WORLD only ever populates
// World; SAVE_RESULTS/LOAD_RESULTS populate every field.
type fileRecord struct {
	World      WorldRecord `json:"world"`
	ProbUp     float64     `json:"prob_up"`
	ProbDown   float64     `json:"prob_down"`
	ProbLeft   float64     `json:"prob_left"`
	ProbRight  float64     `json:"prob_right"`
	K          uint64      `json:"k"`
	TotalReps  uint32      `json:"total_reps"`
	CurrentRep uint32      `json:"current_rep"`
	Trials     []uint32    `json:"trials,omitempty"`
	SumSteps   []uint64    `json:"sum_steps,omitempty"`
	Successes  []uint32    `json:"successes,omitempty"`
}

// FileStore is the default Store backend: one JSON file per key under Dir.
// The file format is deliberately unspecified by spec.md; JSON is a
// reasonable default for a system with no other format requirement.
type FileStore struct {
	Dir string
}

// NewFileStore builds a FileStore rooted at dir, creating it if necessary.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create dir %q: %w", dir, err)
	}
	return &FileStore{Dir: dir}, nil
}

func (fs *FileStore) path(key string) string {
	return filepath.Join(fs.Dir, filepath.Base(key)+".json")
}

// SaveResults writes the full record as JSON, overwriting any prior save at
// the same key.
func (fs *FileStore) SaveResults(key string, rec ResultsRecord) error {
	fr := fileRecord{
		World: rec.World, ProbUp: rec.ProbUp, ProbDown: rec.ProbDown,
		ProbLeft: rec.ProbLeft, ProbRight: rec.ProbRight, K: rec.K,
		TotalReps: rec.TotalReps, CurrentRep: rec.CurrentRep,
		Trials: rec.Trials, SumSteps: rec.SumSteps, Successes: rec.Successes,
	}
	data, err := json.MarshalIndent(fr, "", "  ")
	if err != nil {
		metrics.PersistenceOps.WithLabelValues("save_results", "error").Inc()
		return fmt.Errorf("persistence: marshal: %w", err)
	}
	if err := os.WriteFile(fs.path(key), data, 0o644); err != nil {
		metrics.PersistenceOps.WithLabelValues("save_results", "error").Inc()
		return fmt.Errorf("persistence: write %q: %w", key, err)
	}
	metrics.PersistenceOps.WithLabelValues("save_results", "ok").Inc()
	return nil
}

// LoadResults reads back a full record previously written by SaveResults.
func (fs *FileStore) LoadResults(key string) (ResultsRecord, error) {
	data, err := os.ReadFile(fs.path(key))
	if err != nil {
		metrics.PersistenceOps.WithLabelValues("load_results", "error").Inc()
		if os.IsNotExist(err) {
			return ResultsRecord{}, ErrNotFound
		}
		return ResultsRecord{}, fmt.Errorf("persistence: read %q: %w", key, err)
	}
	var fr fileRecord
	if err := json.Unmarshal(data, &fr); err != nil {
		metrics.PersistenceOps.WithLabelValues("load_results", "error").Inc()
		return ResultsRecord{}, fmt.Errorf("persistence: unmarshal %q: %w", key, err)
	}
	metrics.PersistenceOps.WithLabelValues("load_results", "ok").Inc()
	return ResultsRecord{
		World: fr.World, ProbUp: fr.ProbUp, ProbDown: fr.ProbDown,
		ProbLeft: fr.ProbLeft, ProbRight: fr.ProbRight, K: fr.K,
		TotalReps: fr.TotalReps, CurrentRep: fr.CurrentRep,
		Trials: fr.Trials, SumSteps: fr.SumSteps, Successes: fr.Successes,
	}, nil
}

// LoadWorld reads only the world geometry out of a record, ignoring any
// aggregate/config fields it might also carry.
func (fs *FileStore) LoadWorld(key string) (WorldRecord, error) {
	rec, err := fs.LoadResults(key)
	if err != nil {
		return WorldRecord{}, err
	}
	return rec.World, nil
}
