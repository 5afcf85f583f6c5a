package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// CancelFlag is the cooperative cancellation signal polled between loop
// iterations. Safe to set from any goroutine (e.g. a signal handler or
// the TUI).
type CancelFlag struct {
	flag atomic.Bool
}

// Cancel requests a controlled early exit.
func (c *CancelFlag) Cancel() { c.flag.Store(true) }

// Cancelled reports whether cancellation was requested.
func (c *CancelFlag) Cancelled() bool {
	return c != nil && c.flag.Load()
}

// progressInterval is how often the per-item loops report progress.
const progressInterval = 100

// Orchestrator drives one run through its phases: scan, match+copy,
// copy-unmatched, finalize. It owns the persisted state, so interrupted
// runs resume instead of reprocessing.
type Orchestrator struct {
	cfg    *Config
	cancel *CancelFlag
}

// NewOrchestrator validates the run configuration. Configuration errors
// are fatal here, before any phase starts.
func NewOrchestrator(cfg *Config, cancel *CancelFlag) (*Orchestrator, error) {
	if cfg.SourcePath == "" {
		return nil, fmt.Errorf("source path is required")
	}
	if cfg.DestPath == "" {
		cfg.DestPath = cfg.SourcePath + "_fixed"
	}
	if len(cfg.Suffixes) == 0 {
		cfg.Suffixes = DefaultSuffixes
	}
	seen := make(map[string]struct{}, len(cfg.Suffixes))
	for _, s := range cfg.Suffixes {
		if _, dup := seen[s]; dup {
			return nil, fmt.Errorf("invalid suffix configuration: duplicate suffix %q", s)
		}
		seen[s] = struct{}{}
	}
	if cfg.CopyWorkers < 1 {
		cfg.CopyWorkers = 4
	}
	if cancel == nil {
		cancel = &CancelFlag{}
	}
	return &Orchestrator{cfg: cfg, cancel: cancel}, nil
}

// DryRun scans and matches without copying or tagging anything.
func (o *Orchestrator) DryRun(onProgress ProgressFunc) (*Report, error) {
	report := o.newReport(ModeDryRun, "")

	if !pathExists(o.cfg.SourcePath) {
		report.ConfigErrors = append(report.ConfigErrors, fmt.Sprintf("source path does not exist: %s", o.cfg.SourcePath))
		return report, fmt.Errorf("source path does not exist: %s", o.cfg.SourcePath)
	}

	if o.cfg.WriteTags {
		if path, ok := findExifTool(); ok {
			report.ExifToolFound = true
			report.ExifToolPath = path
		}
	}

	scan, err := ScanTree(o.cfg.SourcePath, onProgress)
	if err != nil {
		report.ConfigErrors = append(report.ConfigErrors, err.Error())
		return report, err
	}
	report.SidecarCount = len(scan.Sidecars)
	report.MediaCount = len(scan.Media)
	report.Stats.SkippedDirs = scan.SkippedDirs
	if len(scan.Sidecars) == 0 {
		report.ConfigErrors = append(report.ConfigErrors,
			"no sidecar files found; this may not be a valid export directory")
	}

	matcher := NewMatcher(scan.Index, o.cfg.Suffixes)
	total := len(scan.Sidecars)
	for i, sidecarPath := range scan.Sidecars {
		if o.cancel.Cancelled() {
			report.Cancelled = true
			break
		}
		if onProgress != nil && i%progressInterval == 0 {
			onProgress(i, total, fmt.Sprintf("Analyzing: %s", filepath.Base(sidecarPath)))
		}

		meta, err := ParseSidecar(sidecarPath)
		if err != nil {
			report.Stats.UnmatchedJSONs++
			continue
		}

		if match := matcher.FindMatch(sidecarPath, meta.Title); match.Found {
			report.MatchedCount++
			if meta.HasLocation() {
				report.Stats.WithGPS++
			}
			if meta.HasPeople() {
				report.Stats.WithPeople++
			}
		} else {
			report.Stats.UnmatchedJSONs++
		}
	}

	report.Stats.UnmatchedMedia = report.MediaCount - report.MatchedCount
	report.EndTime = time.Now()
	if onProgress != nil {
		onProgress(total, total, "Analysis complete")
	}
	return report, nil
}

// Process runs the full pipeline: scan, match and copy, copy leftovers,
// finalize. Interrupted runs (cancel or crash) leave persisted state in
// the destination and resume from it on the next invocation.
func (o *Orchestrator) Process(ctx context.Context, onProgress ProgressFunc) (*Report, error) {
	if !pathExists(o.cfg.SourcePath) {
		report := o.newReport(ModeProcess, "")
		report.ConfigErrors = append(report.ConfigErrors, fmt.Sprintf("source path does not exist: %s", o.cfg.SourcePath))
		return report, fmt.Errorf("source path does not exist: %s", o.cfg.SourcePath)
	}

	destDir, state, resumed, err := o.resolveDestination()
	if err != nil {
		report := o.newReport(ModeProcess, "")
		report.ConfigErrors = append(report.ConfigErrors, err.Error())
		return report, err
	}

	report := o.newReport(ModeProcess, destDir)
	report.RunID = state.RunID()

	log, err := NewRunLog(destDir, o.cfg.Verbose)
	if err != nil {
		return report, err
	}
	defer log.Close()

	if resumed {
		doneSidecars, doneMedia := state.DoneCounts()
		log.Log("Resuming run %s from phase %s (%d sidecars, %d media already done)",
			state.RunID(), state.Phase(), doneSidecars, doneMedia)
	} else {
		log.Log("Started processing: %s -> %s", o.cfg.SourcePath, destDir)
	}

	cache, err := OpenSidecarCache(destDir)
	if err != nil {
		log.Log("Warning: sidecar cache disabled: %v", err)
		cache = nil
	} else {
		defer cache.Close()
	}

	var writer *ExifWriter
	if o.cfg.WriteTags {
		var ok bool
		if writer, ok = NewExifWriter(o.cfg.ExifTool); ok {
			report.ExifToolFound = true
			report.ExifToolPath = writer.Path()
		} else {
			log.Log("Warning: exiftool not found, tags will not be written")
		}
	}

	if err := state.SetPhase(PhaseScanning); err != nil {
		return report, err
	}
	scan, err := ScanTree(o.cfg.SourcePath, onProgress)
	if err != nil {
		report.ConfigErrors = append(report.ConfigErrors, err.Error())
		return report, err
	}
	report.SidecarCount = len(scan.Sidecars)
	report.MediaCount = len(scan.Media)
	if scan.SkippedDirs > 0 {
		log.Log("Warning: skipped %d unreadable directories", scan.SkippedDirs)
	}

	if cache != nil {
		valid := make(map[string]bool, len(scan.Sidecars))
		for _, p := range scan.Sidecars {
			valid[p] = true
		}
		if pruned, err := cache.PruneDeleted(valid); err == nil && pruned > 0 {
			log.Log("Pruned %d stale sidecar cache entries", pruned)
		}
		total, withGeo := cache.Stats()
		log.Debug("Sidecar cache: %d entries, %d with location", total, withGeo)
	}

	processor := NewProcessor(destDir, log, writer, o.cfg.RenameMotion)
	processor.Stats = state.Stats
	// per-run: the latest scan's count, not accumulated across resumes
	processor.Stats.SkippedDirs = scan.SkippedDirs
	state.SetStatsSource(processor.StatsSnapshot)

	matcher := NewMatcher(scan.Index, o.cfg.Suffixes)

	if err := state.SetPhase(PhaseMatching); err != nil {
		return report, err
	}
	cancelled := o.matchAndCopy(ctx, scan, matcher, processor, state, cache, report, onProgress)

	if !cancelled {
		if err := state.SetPhase(PhaseCopyingUnmatched); err != nil {
			return report, err
		}
		cancelled = o.copyUnmatched(scan, processor, state, report, onProgress)
	}

	state.Stats = processor.Stats
	report.Stats = processor.Stats
	report.EndTime = time.Now()

	if cancelled {
		report.Cancelled = true
		if err := state.Save(); err != nil {
			log.Log("Warning: failed to persist state on cancel: %v", err)
		}
		log.Log("Run cancelled; state saved for resume")
	} else {
		if err := state.Complete(); err != nil {
			log.Log("Warning: failed to mark state complete: %v", err)
		}
		log.Log("Run complete: %d processed, %d unmatched sidecars, %d unmatched media",
			report.Stats.Processed, report.Stats.UnmatchedJSONs, report.Stats.UnmatchedMedia)
	}

	if err := WriteReport(destDir, report); err != nil {
		log.Log("Warning: failed to write report: %v", err)
	}
	if onProgress != nil {
		onProgress(report.SidecarCount, report.SidecarCount, "Processing complete")
	}
	return report, nil
}

// resolveDestination inspects the destination and decides between
// resuming, reusing a stateless directory in place, or creating a fresh
// disambiguated destination.
func (o *Orchestrator) resolveDestination() (string, *RunState, bool, error) {
	destDir := o.cfg.DestPath

	if !pathExists(destDir) {
		created, err := checkoutDir(destDir, false)
		if err != nil {
			return "", nil, false, err
		}
		return created, NewRunState(created, o.cfg.SourcePath, o.cfg.Suffixes), false, nil
	}

	prior, err := LoadRunState(destDir)
	if err != nil {
		return "", nil, false, err
	}

	switch {
	case prior == nil:
		// fresh or hand-made directory: reuse in place
		return destDir, NewRunState(destDir, o.cfg.SourcePath, o.cfg.Suffixes), false, nil

	case !prior.FingerprintMatches(o.cfg.SourcePath, destDir, o.cfg.Suffixes):
		// Configuration drift (or a finished export being reprocessed
		// with new settings): a partial resume would silently change
		// which files get which metadata, and writing into a finished
		// export would clobber it. Start fresh next door.
		created, err := checkoutDir(destDir, true)
		if err != nil {
			return "", nil, false, err
		}
		return created, NewRunState(created, o.cfg.SourcePath, o.cfg.Suffixes), false, nil

	default:
		// Same fingerprint: resume. For a completed run the skip-sets
		// cover everything, so the rerun is an idempotent no-op.
		return destDir, prior, true, nil
	}
}

// matchAndCopy is the per-sidecar loop of the MATCH_AND_COPY phase.
// Returns true when cancelled.
func (o *Orchestrator) matchAndCopy(ctx context.Context, scan *ScanResult, matcher *Matcher,
	processor *Processor, state *RunState, cache *SidecarCache, report *Report, onProgress ProgressFunc) bool {

	total := len(scan.Sidecars)
	for i, sidecarPath := range scan.Sidecars {
		if o.cancel.Cancelled() {
			return true
		}
		if onProgress != nil && i%progressInterval == 0 {
			onProgress(i, total, fmt.Sprintf("Processing: %s", filepath.Base(sidecarPath)))
		}
		if state.SidecarDone(sidecarPath) {
			continue
		}

		meta, err := ParseSidecarCached(sidecarPath, cache)
		if err != nil {
			report.UnmatchedJSONs = append(report.UnmatchedJSONs, UnmatchedItem{
				SourcePath: sidecarPath,
				Reason:     err.Error(),
			})
			processor.Stats.UnmatchedJSONs++
			state.MarkSidecar(sidecarPath)
			continue
		}

		// first-hit-wins: only the winning suffix key's records are
		// copied with metadata; other variants fall through to the
		// unmatched-copy phase
		match := matcher.FindMatch(sidecarPath, meta.Title)
		if !match.Found {
			report.UnmatchedJSONs = append(report.UnmatchedJSONs, UnmatchedItem{
				SourcePath: sidecarPath,
				Title:      meta.Title,
				Reason:     "no media file found under any suffix",
			})
			processor.Stats.UnmatchedJSONs++
			state.MarkSidecar(sidecarPath)
			continue
		}

		report.MatchedCount++
		anySuccess := false
		for _, rec := range match.Files {
			if state.MediaDone(rec.Path) {
				continue
			}
			dest, err := processor.ProcessFile(ctx, rec, meta)
			if err != nil {
				continue
			}
			state.MarkMedia(rec.Path)
			report.Processed = append(report.Processed, ProcessedItem{
				SourcePath:  rec.Path,
				DestPath:    dest,
				SidecarPath: sidecarPath,
				Time:        rec.ProcessedTime,
			})
			anySuccess = true
		}
		// GPS/people counted once per sidecar, not per variant
		if anySuccess {
			if meta.HasLocation() {
				processor.Stats.WithGPS++
			}
			if meta.HasPeople() {
				processor.Stats.WithPeople++
			}
		}
		state.MarkSidecar(sidecarPath)
	}
	return false
}

// copyUnmatched copies every media file no match ever touched into the
// Unmatched area, in parallel. The index is read-only by now; stats and
// skip-set updates go through their own locks. Returns true when
// cancelled.
func (o *Orchestrator) copyUnmatched(scan *ScanResult, processor *Processor, state *RunState,
	report *Report, onProgress ProgressFunc) bool {

	var leftovers []*MediaRecord
	for _, rec := range scan.Media {
		if !state.MediaDone(rec.Path) {
			leftovers = append(leftovers, rec)
		}
	}

	total := len(leftovers)
	if onProgress != nil {
		onProgress(0, total, "Copying unmatched files...")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		cancelled bool
	)
	work := make(chan *MediaRecord)

	for w := 0; w < o.cfg.CopyWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range work {
				dest, reason, err := processor.CopyUnmatched(rec)

				mu.Lock()
				if err == nil {
					state.MarkMedia(rec.Path)
					report.UnmatchedMedia = append(report.UnmatchedMedia, UnmatchedItem{
						SourcePath: rec.Path,
						Reason:     reason,
						DestPath:   dest,
					})
				}
				completed++
				if onProgress != nil && completed%progressInterval == 0 {
					onProgress(completed, total, fmt.Sprintf("Copying: %s", rec.Filename))
				}
				mu.Unlock()
			}
		}()
	}

	for _, rec := range leftovers {
		if o.cancel.Cancelled() {
			cancelled = true
			break
		}
		work <- rec
	}
	close(work)
	wg.Wait()

	if onProgress != nil && !cancelled {
		onProgress(total, total, "Unmatched copy complete")
	}
	return cancelled
}

// Extend re-scans source and an already-processed destination, then
// writes metadata tags onto the copied files without recopying. Used to
// backfill tags after a timestamp-only run.
func (o *Orchestrator) Extend(ctx context.Context, onProgress ProgressFunc) (*Report, error) {
	report := o.newReport(ModeExtend, o.cfg.DestPath)

	if !pathExists(o.cfg.SourcePath) {
		report.ConfigErrors = append(report.ConfigErrors, fmt.Sprintf("source path does not exist: %s", o.cfg.SourcePath))
		return report, fmt.Errorf("source path does not exist: %s", o.cfg.SourcePath)
	}
	if !pathExists(o.cfg.DestPath) {
		report.ConfigErrors = append(report.ConfigErrors, fmt.Sprintf("processed destination not found: %s", o.cfg.DestPath))
		return report, fmt.Errorf("processed destination not found: %s", o.cfg.DestPath)
	}

	writer, ok := NewExifWriter(o.cfg.ExifTool)
	if !ok {
		report.ConfigErrors = append(report.ConfigErrors, "exiftool not found; extend mode requires it")
		return report, fmt.Errorf("exiftool not found")
	}
	report.ExifToolFound = true
	report.ExifToolPath = writer.Path()

	if onProgress != nil {
		onProgress(0, 0, "Scanning source...")
	}
	sourceScan, err := ScanTree(o.cfg.SourcePath, onProgress)
	if err != nil {
		report.ConfigErrors = append(report.ConfigErrors, err.Error())
		return report, err
	}

	if onProgress != nil {
		onProgress(0, 0, "Scanning processed files...")
	}
	destScan, err := ScanTree(o.cfg.DestPath, onProgress)
	if err != nil {
		report.ConfigErrors = append(report.ConfigErrors, err.Error())
		return report, err
	}

	report.SidecarCount = len(sourceScan.Sidecars)
	report.MediaCount = len(destScan.Media)

	matcher := NewMatcher(destScan.Index, o.cfg.Suffixes)
	processor := NewProcessor(o.cfg.DestPath, nil, writer, false)

	total := len(sourceScan.Sidecars)
	for i, sidecarPath := range sourceScan.Sidecars {
		if o.cancel.Cancelled() {
			report.Cancelled = true
			break
		}
		if onProgress != nil && i%progressInterval == 0 {
			onProgress(i, total, fmt.Sprintf("Extending: %s", filepath.Base(sidecarPath)))
		}

		meta, err := ParseSidecar(sidecarPath)
		if err != nil || (!meta.HasLocation() && !meta.HasPeople()) {
			processor.Stats.Skipped++
			continue
		}

		match := matcher.FindMatch(sidecarPath, meta.Title)
		if !match.Found {
			processor.Stats.Skipped++
			continue
		}

		report.MatchedCount++
		anySuccess := false
		for _, rec := range match.Files {
			if _, err := processor.ExtendMetadata(ctx, rec.Path, meta); err != nil {
				processor.Stats.Errors++
			} else {
				anySuccess = true
			}
		}
		if anySuccess {
			if meta.HasLocation() {
				processor.Stats.WithGPS++
			}
			if meta.HasPeople() {
				processor.Stats.WithPeople++
			}
		}
	}

	report.Stats = processor.Stats
	report.EndTime = time.Now()
	if onProgress != nil {
		onProgress(total, total, "Extend complete")
	}
	return report, nil
}

func (o *Orchestrator) newReport(mode RunMode, outputDir string) *Report {
	return &Report{
		Mode:      mode.String(),
		OutputDir: outputDir,
		StartTime: time.Now(),
	}
}
