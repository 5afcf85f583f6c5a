package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

type cacheWriteRequest struct {
	meta    *SidecarMeta
	size    int64
	modTime time.Time
}

// SidecarCache persists parsed sidecar metadata so repeated runs over
// the same export (resume, extend) skip the JSON parsing pass. Entries
// are valid only while path, size and mtime all still match.
type SidecarCache struct {
	db         *sql.DB
	writeChan  chan cacheWriteRequest
	writerDone sync.WaitGroup
}

// OpenSidecarCache opens or creates the cache database under destDir.
func OpenSidecarCache(destDir string) (*SidecarCache, error) {
	cacheDir := filepath.Join(destDir, ".takeout-fixer-cache")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(cacheDir, "sidecars.db"))
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	// WAL so the reader side never blocks on the writer goroutine
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS sidecars (
		path TEXT PRIMARY KEY,
		size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		title TEXT NOT NULL,
		taken INTEGER NOT NULL,
		latitude REAL,
		longitude REAL,
		altitude REAL,
		people TEXT,
		description TEXT,
		cached_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_mod_time ON sidecars(mod_time);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	cache := &SidecarCache{
		db:        db,
		writeChan: make(chan cacheWriteRequest, 1000),
	}

	cache.writerDone.Add(1)
	go cache.writerLoop()

	return cache, nil
}

// writerLoop serializes all database writes in a single goroutine.
func (c *SidecarCache) writerLoop() {
	defer c.writerDone.Done()
	for req := range c.writeChan {
		c.writeToDatabase(req.meta, req.size, req.modTime)
	}
}

// Close drains pending writes and closes the database.
func (c *SidecarCache) Close() error {
	if c.writeChan != nil {
		close(c.writeChan)
		c.writerDone.Wait()
	}
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get retrieves cached metadata if the entry is still valid for the
// file's current size and mtime.
func (c *SidecarCache) Get(path string, size int64, modTime time.Time) (*SidecarMeta, bool) {
	var (
		title, description string
		taken              int64
		lat, lon, alt      sql.NullFloat64
		peopleJSON         sql.NullString
	)

	err := c.db.QueryRow(`
		SELECT title, taken, latitude, longitude, altitude, people, description
		FROM sidecars
		WHERE path = ? AND size = ? AND mod_time = ?
	`, path, size, modTime.Unix()).Scan(&title, &taken, &lat, &lon, &alt, &peopleJSON, &description)
	if err != nil {
		return nil, false
	}

	meta := &SidecarMeta{
		Path:        path,
		Title:       title,
		Taken:       time.Unix(taken, 0),
		Description: description,
	}
	if lat.Valid && lon.Valid && (lat.Float64 != 0 || lon.Float64 != 0) {
		meta.Geo = &GeoData{Latitude: lat.Float64, Longitude: lon.Float64, Altitude: alt.Float64}
	}
	if peopleJSON.Valid && peopleJSON.String != "" {
		if err := json.Unmarshal([]byte(peopleJSON.String), &meta.People); err != nil {
			return nil, false
		}
	}

	return meta, true
}

// Put queues metadata for writing. Non-blocking; if the queue is full
// the write is dropped, the cache is best-effort.
func (c *SidecarCache) Put(meta *SidecarMeta, size int64, modTime time.Time) error {
	select {
	case c.writeChan <- cacheWriteRequest{meta: meta, size: size, modTime: modTime}:
		return nil
	default:
		return fmt.Errorf("cache write queue full")
	}
}

func (c *SidecarCache) writeToDatabase(meta *SidecarMeta, size int64, modTime time.Time) {
	var lat, lon, alt sql.NullFloat64
	if meta.Geo != nil {
		lat = sql.NullFloat64{Float64: meta.Geo.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: meta.Geo.Longitude, Valid: true}
		alt = sql.NullFloat64{Float64: meta.Geo.Altitude, Valid: true}
	}

	var peopleJSON sql.NullString
	if len(meta.People) > 0 {
		if data, err := json.Marshal(meta.People); err == nil {
			peopleJSON = sql.NullString{String: string(data), Valid: true}
		}
	}

	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO sidecars
		(path, size, mod_time, title, taken, latitude, longitude, altitude, people, description, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, meta.Path, size, modTime.Unix(), meta.Title, meta.Taken.Unix(),
		lat, lon, alt, peopleJSON, meta.Description, time.Now().Unix())
	if err != nil {
		// best-effort, never fail the run over a cache write
		fmt.Fprintf(os.Stderr, "Warning: cache write failed for %s: %v\n", meta.Path, err)
	}
}

// Stats returns the number of cached entries and how many carry GPS.
func (c *SidecarCache) Stats() (total, withGeo int64) {
	c.db.QueryRow("SELECT COUNT(*) FROM sidecars").Scan(&total)
	c.db.QueryRow("SELECT COUNT(*) FROM sidecars WHERE latitude IS NOT NULL").Scan(&withGeo)
	return
}

// PruneDeleted removes entries whose sidecar no longer exists on disk.
func (c *SidecarCache) PruneDeleted(validPaths map[string]bool) (int64, error) {
	rows, err := c.db.Query("SELECT path FROM sidecars")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var toDelete []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			continue
		}
		if !validPaths[path] {
			toDelete = append(toDelete, path)
		}
	}
	if len(toDelete) == 0 {
		return 0, nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("DELETE FROM sidecars WHERE path = ?")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, path := range toDelete {
		if _, err := stmt.Exec(path); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(toDelete)), nil
}
