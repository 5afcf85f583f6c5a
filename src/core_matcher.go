package main

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// maxFilenameLength is where the export tool truncates filenames. The
// limit applies to the UTF-8 encoded length, so multi-byte titles are
// cut at the same point the export tool cut them.
const maxFilenameLength = 51

// bracketPattern matches the duplicate marker on sidecar names, e.g.
// "photo.jpg(1).json". The corresponding media file carries the marker
// before its own extension instead: "photo(1).jpg".
var bracketPattern = regexp.MustCompile(`\(([1-9][0-9]{0,2})\)\.json$`)

// bracketProbeLimit bounds the brute-forced duplicate markers tried for
// suffix+bracket combinations like "photo-edited(3).jpg".
const bracketProbeLimit = 10

// ParsedTitle is a sidecar title split into the pieces candidate media
// filenames are built from.
type ParsedTitle struct {
	Name      string // base name, truncated like the export tool would
	Extension string // extension including the dot
	Brackets  string // duplicate marker like "(1)", or empty
}

// BuildFilename assembles a candidate media filename with the given
// suffix inserted between base name and duplicate marker.
func (p ParsedTitle) BuildFilename(suffix string) string {
	return p.Name + suffix + p.Brackets + p.Extension
}

// Matcher resolves sidecar files against a scanned file index.
type Matcher struct {
	index    FileIndex
	suffixes []string
}

// NewMatcher builds a matcher over index. A nil suffix list falls back
// to DefaultSuffixes; order matters, the first suffix that hits wins.
func NewMatcher(index FileIndex, suffixes []string) *Matcher {
	if suffixes == nil {
		suffixes = DefaultSuffixes
	}
	return &Matcher{index: index, suffixes: suffixes}
}

// ParseTitle splits a declared title into name, extension and duplicate
// marker, normalizing to NFC and re-applying the export tool's
// 51-byte truncation. The marker comes from the sidecar's own path, not
// the title: "photo.jpg(1).json" means the media file is "photo(1).jpg".
func (m *Matcher) ParseTitle(title, sidecarPath string) ParsedTitle {
	title = normalizeName(title)
	ext := filepath.Ext(title)
	name := strings.TrimSuffix(title, ext)

	if len(name)+len(ext) > maxFilenameLength {
		keep := maxFilenameLength - len(ext)
		if keep < 0 {
			keep = 0
		}
		name = name[:keep]
	}

	brackets := ""
	if strings.HasSuffix(sidecarPath, ").json") {
		if match := bracketPattern.FindStringSubmatch(sidecarPath); match != nil {
			brackets = fmt.Sprintf("(%s)", match[1])
		}
	}

	return ParsedTitle{Name: name, Extension: ext, Brackets: brackets}
}

// FindMatch resolves one sidecar to its media file(s).
//
// The first pass tries each configured suffix in order with the parsed
// duplicate marker; the first key present in the index wins and every
// record under it is returned. A fallback pass only runs when that
// missed and the sidecar had no duplicate marker: it brute-forces
// suffix+bracket combinations ("photo-edited(1).jpg" for sidecar
// "photo.jpg.json").
//
// Resolution stops at the first hit: later suffixes are never tried
// once an earlier key exists, so an unedited original always shadows
// its edited variant. The result is a pure function of (title, sidecar
// path, index, suffix order), which resume correctness depends on.
func (m *Matcher) FindMatch(sidecarPath, title string) MatchResult {
	parsed := m.ParseTitle(title, sidecarPath)
	album := normalizeName(albumName(sidecarPath))

	for _, suffix := range m.suffixes {
		if files := m.index.Lookup(album, parsed.BuildFilename(suffix)); files != nil {
			return MatchResult{Found: true, Files: files, SidecarPath: sidecarPath, Title: title}
		}
	}

	if parsed.Brackets == "" {
		for _, suffix := range m.suffixes {
			if suffix == "" {
				continue
			}
			for n := 1; n <= bracketProbeLimit; n++ {
				candidate := fmt.Sprintf("%s%s(%d)%s", parsed.Name, suffix, n, parsed.Extension)
				if files := m.index.Lookup(album, candidate); files != nil {
					return MatchResult{Found: true, Files: files, SidecarPath: sidecarPath, Title: title}
				}
			}
		}
	}

	return MatchResult{Found: false, SidecarPath: sidecarPath, Title: title}
}
