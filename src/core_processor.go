package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// Motion photo sidecar extensions produced by some phones.
var motionPhotoExts = map[string]bool{".mp": true, ".mp~2": true}

// unmatchedDirName is where media without a matching sidecar lands.
const unmatchedDirName = "Unmatched"

// Processor copies files into the destination tree, stamps their
// timestamps from sidecar metadata and forwards tags to the exiftool
// collaborator. Mutating methods are safe for concurrent use; stats and
// directory bookkeeping are guarded by one mutex.
type Processor struct {
	mu          sync.Mutex
	destDir     string
	log         *RunLog
	writer      *ExifWriter
	renameMP    bool
	Stats       ProcessingStats
	createdDirs map[string]struct{}
}

// NewProcessor builds a processor writing under destDir. writer may be
// nil, in which case tag writes are skipped and counted.
func NewProcessor(destDir string, log *RunLog, writer *ExifWriter, renameMP bool) *Processor {
	return &Processor{
		destDir:     destDir,
		log:         log,
		writer:      writer,
		renameMP:    renameMP,
		createdDirs: make(map[string]struct{}),
	}
}

// albumDir materializes the album subdirectory, caching created paths
// to avoid redundant MkdirAll calls.
func (p *Processor) albumDir(base, album string) (string, error) {
	dir := filepath.Join(base, album)
	p.mu.Lock()
	_, ok := p.createdDirs[dir]
	p.mu.Unlock()
	if ok {
		return dir, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create album dir: %w", err)
	}
	p.mu.Lock()
	p.createdDirs[dir] = struct{}{}
	p.mu.Unlock()
	return dir, nil
}

// ProcessFile copies one matched media file into its album directory,
// sets its timestamps from the capture time and queues the metadata
// tags. Returns the destination path.
func (p *Processor) ProcessFile(ctx context.Context, rec *MediaRecord, meta *SidecarMeta) (string, error) {
	dir, err := p.albumDir(p.destDir, rec.AlbumName)
	if err != nil {
		p.addError()
		return "", err
	}

	dest := uniquePath(filepath.Join(dir, rec.Filename))
	p.log.Debug("Copying: %s -> %s", rec.Path, dest)

	n, err := copyFile(rec.Path, dest)
	if err != nil {
		p.log.Log("Error: failed to copy %s: %v", rec.Path, err)
		p.addError()
		return "", err
	}

	if err := os.Chtimes(dest, meta.Taken, meta.Taken); err != nil {
		p.log.Log("Warning: could not set file dates on %s: %v", dest, err)
	}

	if p.writer != nil {
		if tags := buildAllTags(meta); len(tags) > 0 {
			if err := p.writer.WriteTags(ctx, dest, tags); err != nil {
				p.log.Log("Warning: %v", err)
				p.mu.Lock()
				p.Stats.TagWriteErrors++
				p.mu.Unlock()
			}
		}
	}

	rec.DestPath = dest
	rec.SidecarPath = meta.Path
	rec.ProcessedTime = time.Now()

	p.mu.Lock()
	p.Stats.Processed++
	p.Stats.BytesCopied += n
	p.mu.Unlock()

	return dest, nil
}

// CopyUnmatched copies a media file that never matched a sidecar into
// the Unmatched area, preserving album structure. Returns the
// destination and the reason recorded for the report.
func (p *Processor) CopyUnmatched(rec *MediaRecord) (dest, reason string, err error) {
	dir, err := p.albumDir(filepath.Join(p.destDir, unmatchedDirName), rec.AlbumName)
	if err != nil {
		p.addError()
		return "", "", err
	}

	ext := strings.ToLower(filepath.Ext(rec.Filename))
	destName := rec.Filename
	if motionPhotoExts[ext] {
		reason = fmt.Sprintf("motion photo sidecar (parent: %s)", strings.TrimSuffix(rec.Filename, filepath.Ext(rec.Filename)))
		if p.renameMP {
			destName = strings.TrimSuffix(rec.Filename, filepath.Ext(rec.Filename)) + ".MP4"
		}
	} else {
		reason = "no matching sidecar found"
	}

	p.mu.Lock()
	dest = uniquePath(filepath.Join(dir, destName))
	p.mu.Unlock()

	p.log.Debug("Copying unmatched: %s", rec.Path)
	n, err := copyFile(rec.Path, dest)
	if err != nil {
		p.log.Log("Error: failed to copy unmatched file %s: %v", rec.Path, err)
		p.addError()
		return "", reason, err
	}

	rec.DestPath = dest

	p.mu.Lock()
	p.Stats.UnmatchedMedia++
	p.Stats.BytesCopied += n
	p.mu.Unlock()

	return dest, reason, nil
}

// ExtendMetadata writes sidecar tags onto an already-copied file
// without recopying it. Files whose EXIF already carries GPS are
// skipped when the sidecar would only add location again.
func (p *Processor) ExtendMetadata(ctx context.Context, path string, meta *SidecarMeta) (written bool, err error) {
	if meta.HasLocation() && !meta.HasPeople() && meta.Description == "" && hasGPSData(path) {
		p.mu.Lock()
		p.Stats.Skipped++
		p.mu.Unlock()
		return false, nil
	}

	if p.writer == nil {
		return false, fmt.Errorf("exiftool unavailable")
	}

	tags := buildAllTags(meta)
	if len(tags) == 0 {
		return false, nil
	}
	if err := p.writer.WriteTags(ctx, path, tags); err != nil {
		p.mu.Lock()
		p.Stats.TagWriteErrors++
		p.mu.Unlock()
		return false, err
	}

	p.mu.Lock()
	p.Stats.Processed++
	p.mu.Unlock()
	return true, nil
}

// StatsSnapshot returns a consistent copy of the live counters. Used
// as the state's stats source so interval saves persist current
// numbers, not the numbers the run started with.
func (p *Processor) StatsSnapshot() ProcessingStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Stats
}

func (p *Processor) addError() {
	p.mu.Lock()
	p.Stats.Errors++
	p.mu.Unlock()
}

// hasGPSData reports whether a file's EXIF already carries a GPS fix.
func hasGPSData(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return false
	}
	lat, lon, err := x.LatLong()
	if err != nil {
		return false
	}
	return lat != 0 || lon != 0
}

// copyFile copies src to dst preserving permissions and returns the
// number of bytes copied. Source paths are only ever opened read-only.
func copyFile(src, dst string) (int64, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return 0, err
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return 0, err
	}
	defer dstFile.Close()

	n, err := io.Copy(dstFile, srcFile)
	if err != nil {
		return n, err
	}
	return n, dstFile.Sync()
}
