package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunPhase is the persisted position of a run in the pipeline.
type RunPhase string

const (
	PhaseScanning         RunPhase = "scanning"
	PhaseMatching         RunPhase = "matching"
	PhaseCopyingUnmatched RunPhase = "copying_unmatched"
	PhaseDone             RunPhase = "done"
)

const stateFilename = "processing_state.json"

// saveInterval batches state saves so a crash loses at most this many
// completed items.
const saveInterval = 100

// stateFile is the on-disk layout of the persisted run state.
type stateFile struct {
	Version      int             `json:"version"`
	RunID        string          `json:"run_id"`
	Phase        RunPhase        `json:"phase"`
	SourcePath   string          `json:"source_path"`
	DestPath     string          `json:"dest_path"`
	Suffixes     []string        `json:"suffixes"`
	StartedAt    time.Time       `json:"started_at"`
	LastUpdated  time.Time       `json:"last_updated"`
	Completed    bool            `json:"completed"`
	Stats        ProcessingStats `json:"stats"`
	DoneSidecars []string        `json:"done_sidecars"`
	DoneMedia    []string        `json:"done_media"`
}

// RunState tracks which sidecars and media files a run has already
// handled, enabling resume after interruption. The mutating methods are
// safe for concurrent use so parallel copy workers can record progress.
type RunState struct {
	mu sync.Mutex

	statePath    string
	runID        string
	phase        RunPhase
	sourcePath   string
	destPath     string
	suffixes     []string
	startedAt    time.Time
	completed    bool
	Stats        ProcessingStats
	statsFn      func() ProcessingStats
	doneSidecars map[string]struct{}
	doneMedia    map[string]struct{}
	pendingSaves int
}

// NewRunState creates fresh state for a run into destDir.
func NewRunState(destDir, sourcePath string, suffixes []string) *RunState {
	return &RunState{
		statePath:    filepath.Join(destDir, stateFilename),
		runID:        uuid.NewString(),
		phase:        PhaseScanning,
		sourcePath:   sourcePath,
		destPath:     destDir,
		suffixes:     append([]string(nil), suffixes...),
		startedAt:    time.Now(),
		doneSidecars: make(map[string]struct{}),
		doneMedia:    make(map[string]struct{}),
	}
}

// LoadRunState reads persisted state from destDir. Returns nil without
// error when no state file exists.
func LoadRunState(destDir string) (*RunState, error) {
	statePath := filepath.Join(destDir, stateFilename)
	data, err := os.ReadFile(statePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", statePath, err)
	}

	st := &RunState{
		statePath:    statePath,
		runID:        sf.RunID,
		phase:        sf.Phase,
		sourcePath:   sf.SourcePath,
		destPath:     sf.DestPath,
		suffixes:     sf.Suffixes,
		startedAt:    sf.StartedAt,
		completed:    sf.Completed,
		Stats:        sf.Stats,
		doneSidecars: make(map[string]struct{}, len(sf.DoneSidecars)),
		doneMedia:    make(map[string]struct{}, len(sf.DoneMedia)),
	}
	for _, p := range sf.DoneSidecars {
		st.doneSidecars[p] = struct{}{}
	}
	for _, p := range sf.DoneMedia {
		st.doneMedia[p] = struct{}{}
	}
	return st, nil
}

// RunID identifies this run in logs and reports.
func (s *RunState) RunID() string { return s.runID }

// Phase returns the persisted phase marker.
func (s *RunState) Phase() RunPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// IsCompleted reports whether the run this state belongs to finished.
func (s *RunState) IsCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// FingerprintMatches reports whether persisted state was produced by
// the same run configuration. A differing suffix list is configuration
// drift: resuming would silently change which files got which metadata.
func (s *RunState) FingerprintMatches(sourcePath, destPath string, suffixes []string) bool {
	if s.sourcePath != sourcePath || s.destPath != destPath {
		return false
	}
	if len(s.suffixes) != len(suffixes) {
		return false
	}
	for i, suffix := range s.suffixes {
		if suffix != suffixes[i] {
			return false
		}
	}
	return true
}

// SetPhase records a phase transition and saves immediately.
func (s *RunState) SetPhase(phase RunPhase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
	return s.saveLocked()
}

// MarkSidecar records a sidecar as resolved. Saves every saveInterval
// marks.
func (s *RunState) MarkSidecar(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doneSidecars[path] = struct{}{}
	s.bumpLocked()
}

// MarkMedia records a media file as copied.
func (s *RunState) MarkMedia(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doneMedia[path] = struct{}{}
	s.bumpLocked()
}

// SidecarDone reports whether a sidecar was handled by this or a prior
// run.
func (s *RunState) SidecarDone(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.doneSidecars[path]
	return ok
}

// MediaDone reports whether a media file was already copied.
func (s *RunState) MediaDone(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.doneMedia[path]
	return ok
}

// DoneCounts returns the sizes of the two skip-sets.
func (s *RunState) DoneCounts() (sidecars, media int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.doneSidecars), len(s.doneMedia)
}

// Complete marks the run finished and saves.
func (s *RunState) Complete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseDone
	s.completed = true
	return s.saveLocked()
}

// SetStatsSource registers a callback that yields live run statistics.
// Every save pulls from it, so a crash between saves loses at most one
// interval of counting, same as the skip-sets.
func (s *RunState) SetStatsSource(fn func() ProcessingStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsFn = fn
}

// Save forces a write of the current state.
func (s *RunState) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *RunState) bumpLocked() {
	s.pendingSaves++
	if s.pendingSaves >= saveInterval {
		// best-effort: a failed interval save costs at most one interval
		_ = s.saveLocked()
	}
}

func (s *RunState) saveLocked() error {
	if s.statsFn != nil {
		s.Stats = s.statsFn()
	}
	sf := stateFile{
		Version:      1,
		RunID:        s.runID,
		Phase:        s.phase,
		SourcePath:   s.sourcePath,
		DestPath:     s.destPath,
		Suffixes:     s.suffixes,
		StartedAt:    s.startedAt,
		LastUpdated:  time.Now(),
		Completed:    s.completed,
		Stats:        s.Stats,
		DoneSidecars: sortedKeys(s.doneSidecars),
		DoneMedia:    sortedKeys(s.doneMedia),
	}

	data, err := json.MarshalIndent(&sf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	// write-then-rename so a crash never leaves a torn state file
	tmp := s.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.statePath); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	s.pendingSaves = 0
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
