package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// sidecarDoc mirrors the export tool's sidecar JSON schema. Timestamps
// arrive as decimal strings of Unix seconds.
type sidecarDoc struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	PhotoTakenTime *struct {
		Timestamp string `json:"timestamp"`
	} `json:"photoTakenTime"`
	GeoData *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Altitude  float64 `json:"altitude"`
	} `json:"geoData"`
	People []struct {
		Name string `json:"name"`
	} `json:"people"`
}

// ParseSidecar reads and parses one sidecar file. Title and capture
// time are required; everything else is optional. A geoData of exactly
// (0,0) is the export tool's null sentinel and parses to no location.
func ParseSidecar(path string) (*SidecarMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	return parseSidecarBytes(path, data)
}

func parseSidecarBytes(path string, data []byte) (*SidecarMeta, error) {
	var doc sidecarDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse sidecar %s: %w", path, err)
	}

	if doc.Title == "" {
		return nil, fmt.Errorf("sidecar %s: missing title", path)
	}
	if doc.PhotoTakenTime == nil || doc.PhotoTakenTime.Timestamp == "" {
		return nil, fmt.Errorf("sidecar %s: missing capture time", path)
	}

	seconds, err := strconv.ParseInt(doc.PhotoTakenTime.Timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("sidecar %s: bad timestamp %q", path, doc.PhotoTakenTime.Timestamp)
	}

	meta := &SidecarMeta{
		Path:        path,
		Title:       doc.Title,
		Taken:       time.Unix(seconds, 0),
		Description: doc.Description,
	}

	if g := doc.GeoData; g != nil && (g.Latitude != 0 || g.Longitude != 0) {
		meta.Geo = &GeoData{Latitude: g.Latitude, Longitude: g.Longitude, Altitude: g.Altitude}
	}

	for _, p := range doc.People {
		if p.Name != "" {
			meta.People = append(meta.People, p.Name)
		}
	}

	return meta, nil
}

// ParseSidecarCached parses a sidecar, consulting the cache first when
// one is available. Cache misses and write failures never fail the
// parse.
func ParseSidecarCached(path string, cache *SidecarCache) (*SidecarMeta, error) {
	if cache == nil {
		return ParseSidecar(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat sidecar: %w", err)
	}

	if meta, ok := cache.Get(path, info.Size(), info.ModTime()); ok {
		return meta, nil
	}

	meta, err := ParseSidecar(path)
	if err != nil {
		return nil, err
	}
	cache.Put(meta, info.Size(), info.ModTime())
	return meta, nil
}
