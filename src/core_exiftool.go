package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// TagSet is a set of exiftool tags to write. Values may be strings,
// numbers or string slices (written as repeated list items).
type TagSet map[string]any

// defaultTagTimeout bounds a single exiftool invocation. A hung tag
// write is treated as a per-call failure, not a run failure.
const defaultTagTimeout = 30 * time.Second

// findExifTool locates the exiftool binary on PATH.
func findExifTool() (string, bool) {
	path, err := exec.LookPath("exiftool")
	if err != nil {
		return "", false
	}
	return path, true
}

// ExifWriter shells out to exiftool to write tags. Construct with
// NewExifWriter; a zero value is unusable.
type ExifWriter struct {
	path    string
	timeout time.Duration
}

// NewExifWriter returns a writer using the given binary path, or looks
// one up on PATH when empty. Returns false when no binary is available.
func NewExifWriter(path string) (*ExifWriter, bool) {
	if path == "" {
		found, ok := findExifTool()
		if !ok {
			return nil, false
		}
		path = found
	}
	return &ExifWriter{path: path, timeout: defaultTagTimeout}, true
}

// Path returns the exiftool binary in use.
func (w *ExifWriter) Path() string { return w.path }

// WriteTags writes a tag set onto one file. The source file is never
// touched; callers pass destination paths only.
func (w *ExifWriter) WriteTags(ctx context.Context, filePath string, tags TagSet) error {
	if len(tags) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	args := []string{"-overwrite_original", "-q", "-q"}
	args = append(args, tagArgs(tags)...)
	args = append(args, filePath)

	cmd := exec.CommandContext(ctx, w.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("exiftool timed out on %s", filePath)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("exiftool failed on %s: %s", filePath, msg)
		}
		return fmt.Errorf("exiftool failed on %s: %w", filePath, err)
	}
	return nil
}

// tagArgs renders a tag set as exiftool arguments, sorted by tag name
// so invocations are deterministic. Slice values become repeated list
// items, which is how exiftool takes multi-valued tags.
func tagArgs(tags TagSet) []string {
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)

	var args []string
	for _, name := range names {
		switch v := tags[name].(type) {
		case []string:
			for _, item := range v {
				args = append(args, fmt.Sprintf("-%s=%s", name, item))
			}
		case float64:
			args = append(args, fmt.Sprintf("-%s=%g", name, v))
		default:
			args = append(args, fmt.Sprintf("-%s=%v", name, v))
		}
	}
	return args
}

// buildGPSTags converts coordinates to exiftool GPS tags. Invalid or
// sentinel (0,0) coordinates produce nothing.
func buildGPSTags(geo *GeoData) TagSet {
	if !geo.IsValid() {
		return nil
	}

	latRef, lonRef := "N", "E"
	if geo.Latitude < 0 {
		latRef = "S"
	}
	if geo.Longitude < 0 {
		lonRef = "W"
	}
	altRef := 0
	if geo.Altitude < 0 {
		altRef = 1
	}

	return TagSet{
		"GPSLatitude":     abs(geo.Latitude),
		"GPSLatitudeRef":  latRef,
		"GPSLongitude":    abs(geo.Longitude),
		"GPSLongitudeRef": lonRef,
		"GPSAltitude":     abs(geo.Altitude),
		"GPSAltitudeRef":  altRef,
	}
}

// buildPeopleTags writes person names to every tag location the common
// viewers read: XMP-iptcExt, IPTC keywords, XMP-dc subject, and the
// Windows Explorer keyword field.
func buildPeopleTags(people []string) TagSet {
	if len(people) == 0 {
		return nil
	}
	return TagSet{
		"PersonInImage": people,
		"Keywords":      people,
		"Subject":       people,
		"XPKeywords":    strings.Join(people, ";"),
	}
}

// buildDescriptionTags mirrors a free-text description into EXIF, IPTC
// and XMP.
func buildDescriptionTags(description string) TagSet {
	if description == "" {
		return nil
	}
	return TagSet{
		"ImageDescription": description,
		"Caption-Abstract": description,
		"Description":      description,
	}
}

// buildAllTags merges every tag the sidecar metadata produces.
func buildAllTags(meta *SidecarMeta) TagSet {
	tags := make(TagSet)
	for k, v := range buildGPSTags(meta.Geo) {
		tags[k] = v
	}
	for k, v := range buildPeopleTags(meta.People) {
		tags[k] = v
	}
	for k, v := range buildDescriptionTags(meta.Description) {
		tags[k] = v
	}
	return tags
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
