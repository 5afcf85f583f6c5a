package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// RunLog writes timestamped lines to logs.txt in the output directory.
// One RunLog lives for exactly one run and is passed explicitly to the
// components that log; there is no package-level handle.
type RunLog struct {
	mu      sync.Mutex
	file    *os.File
	writer  *bufio.Writer
	verbose bool
}

// NewRunLog opens (or appends to) logs.txt under outputDir.
func NewRunLog(outputDir string, verbose bool) (*RunLog, error) {
	f, err := os.OpenFile(filepath.Join(outputDir, "logs.txt"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &RunLog{file: f, writer: bufio.NewWriter(f), verbose: verbose}, nil
}

// Log writes one timestamped line.
func (l *RunLog) Log(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(l.writer, "%s %s\n", ts, fmt.Sprintf(format, args...))
}

// Debug logs only when verbose is enabled.
func (l *RunLog) Debug(format string, args ...any) {
	if l == nil || !l.verbose {
		return
	}
	l.Log(format, args...)
}

// Close flushes and closes the log file.
func (l *RunLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// WriteReport writes the machine-readable report.json and a human
// summary.txt next to the logs.
func WriteReport(outputDir string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "report.json"), data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	f, err := os.Create(filepath.Join(outputDir, "summary.txt"))
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	fmt.Fprintf(w, "Takeout Fixer — run %s (%s)\n", report.RunID, report.Mode)
	fmt.Fprintf(w, "Started:  %s\n", report.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Finished: %s (%.1fs)\n", report.EndTime.Format("2006-01-02 15:04:05"),
		report.EndTime.Sub(report.StartTime).Seconds())
	if report.Cancelled {
		fmt.Fprintf(w, "Status:   CANCELLED (resumable, state saved)\n")
	} else {
		fmt.Fprintf(w, "Status:   complete\n")
	}
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Sidecars found:    %d\n", report.SidecarCount)
	fmt.Fprintf(w, "Media found:       %d\n", report.MediaCount)
	fmt.Fprintf(w, "Processed:         %d (%s)\n", report.Stats.Processed, humanize.Bytes(uint64(report.Stats.BytesCopied)))
	fmt.Fprintf(w, "With GPS:          %d\n", report.Stats.WithGPS)
	fmt.Fprintf(w, "With people:       %d\n", report.Stats.WithPeople)
	fmt.Fprintf(w, "Skipped:           %d\n", report.Stats.Skipped)
	fmt.Fprintf(w, "Errors:            %d (copy) / %d (tag writes)\n", report.Stats.Errors, report.Stats.TagWriteErrors)
	fmt.Fprintf(w, "Unmatched sidecars: %d\n", report.Stats.UnmatchedJSONs)
	fmt.Fprintf(w, "Unmatched media:    %d\n", report.Stats.UnmatchedMedia)

	if len(report.UnmatchedJSONs) > 0 {
		fmt.Fprintf(w, "\nUnmatched sidecars:\n")
		for _, item := range report.UnmatchedJSONs {
			fmt.Fprintf(w, "  %s — %s\n", item.SourcePath, item.Reason)
		}
	}
	if len(report.UnmatchedMedia) > 0 {
		fmt.Fprintf(w, "\nUnmatched media (copied without metadata):\n")
		for _, item := range report.UnmatchedMedia {
			fmt.Fprintf(w, "  %s — %s\n", item.SourcePath, item.Reason)
		}
	}
	return nil
}
