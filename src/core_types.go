package main

import (
	"time"
)

// RunMode selects which pipeline the orchestrator runs.
type RunMode int

const (
	ModeDryRun RunMode = iota
	ModeProcess
	ModeExtend
)

func (m RunMode) String() string {
	return [...]string{"DryRun", "Process", "Extend"}[m]
}

// MediaRecord represents a media file found during scanning.
type MediaRecord struct {
	Filename  string
	Path      string
	AlbumName string

	// Populated by the processor once a match is applied
	DestPath      string
	SidecarPath   string
	ProcessedTime time.Time
}

// IndexKey identifies a media file by album and name.
type IndexKey struct {
	Album    string
	Filename string
}

// FileIndex maps (album, filename) to every media record sharing that
// key. Duplicates are preserved in insertion order.
type FileIndex map[IndexKey][]*MediaRecord

// Lookup returns all records under a key, or nil.
func (idx FileIndex) Lookup(album, filename string) []*MediaRecord {
	return idx[IndexKey{Album: album, Filename: filename}]
}

// GeoData holds GPS coordinates from sidecar metadata. The export tool
// writes (0,0) as a null sentinel, so that pair never counts as a
// location.
type GeoData struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// IsValid reports whether the coordinates are meaningful (not 0,0).
func (g *GeoData) IsValid() bool {
	return g != nil && (g.Latitude != 0 || g.Longitude != 0)
}

// SidecarMeta is the metadata parsed from one sidecar JSON file.
type SidecarMeta struct {
	Path        string
	Title       string
	Taken       time.Time
	Geo         *GeoData
	People      []string
	Description string
}

// HasLocation reports whether the sidecar carries usable GPS data.
func (m *SidecarMeta) HasLocation() bool {
	return m.Geo.IsValid()
}

// HasPeople reports whether anyone is tagged in the sidecar.
func (m *SidecarMeta) HasPeople() bool {
	return len(m.People) > 0
}

// MatchResult is the outcome of resolving one sidecar against the index.
type MatchResult struct {
	Found       bool
	Files       []*MediaRecord
	SidecarPath string
	Title       string
}

// ProcessingStats counts outcomes of one run.
type ProcessingStats struct {
	Processed      int   `json:"processed"`
	Skipped        int   `json:"skipped"`
	Errors         int   `json:"errors"`
	WithGPS        int   `json:"with_gps"`
	WithPeople     int   `json:"with_people"`
	UnmatchedJSONs int   `json:"unmatched_jsons"`
	UnmatchedMedia int   `json:"unmatched_media"`
	TagWriteErrors int   `json:"tag_write_errors"`
	SkippedDirs    int   `json:"skipped_dirs"`
	BytesCopied    int64 `json:"bytes_copied"`
}

// TotalFiles returns the number of files the run touched.
func (s *ProcessingStats) TotalFiles() int {
	return s.Processed + s.Skipped + s.Errors
}

// ProcessedItem records one successfully processed file for the report.
type ProcessedItem struct {
	SourcePath  string    `json:"source_path"`
	DestPath    string    `json:"dest_path"`
	SidecarPath string    `json:"sidecar_path"`
	Time        time.Time `json:"time"`
}

// UnmatchedItem records a sidecar or media file that could not be
// matched, with the reason.
type UnmatchedItem struct {
	SourcePath string `json:"source_path"`
	Title      string `json:"title,omitempty"`
	Reason     string `json:"reason"`
	DestPath   string `json:"dest_path,omitempty"`
}

// Report is the final per-run summary handed back to the caller.
type Report struct {
	RunID           string          `json:"run_id"`
	Mode            string          `json:"mode"`
	OutputDir       string          `json:"output_dir"`
	Cancelled       bool            `json:"cancelled"`
	Stats           ProcessingStats `json:"stats"`
	Processed       []ProcessedItem `json:"processed,omitempty"`
	UnmatchedJSONs  []UnmatchedItem `json:"unmatched_jsons,omitempty"`
	UnmatchedMedia  []UnmatchedItem `json:"unmatched_media,omitempty"`
	ConfigErrors    []string        `json:"config_errors,omitempty"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	ExifToolFound   bool            `json:"exiftool_found"`
	ExifToolPath    string          `json:"exiftool_path,omitempty"`
	SidecarCount    int             `json:"sidecar_count"`
	MediaCount      int             `json:"media_count"`
	MatchedCount    int             `json:"matched_count"`
}

// ScanProgress is pushed over progress channels while a phase runs.
// TotalItems == 0 means the total is not yet known (indeterminate).
type ScanProgress struct {
	CurrentItem int
	TotalItems  int
	Message     string
}

// ProgressFunc receives progress updates. total == 0 signals
// indeterminate progress.
type ProgressFunc func(current, total int, message string)

// Config holds one run's configuration.
type Config struct {
	SourcePath   string
	DestPath     string
	Suffixes     []string
	Mode         RunMode
	WriteTags    bool
	RenameMotion bool
	CopyWorkers  int
	ExifTool     string
	Verbose      bool
}

// DefaultSuffixes are the filename suffixes tried in order; the empty
// suffix must come first so unedited originals win.
var DefaultSuffixes = []string{"", "-edited"}
