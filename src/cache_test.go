package main

import (
	"testing"
	"time"
)

func openTestCache(t *testing.T) (*SidecarCache, string) {
	t.Helper()
	dir := t.TempDir()
	cache, err := OpenSidecarCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	return cache, dir
}

// reopen drains pending writes and reopens the cache so Get sees them.
func reopen(t *testing.T, cache *SidecarCache, dir string) *SidecarCache {
	t.Helper()
	if err := cache.Close(); err != nil {
		t.Fatal(err)
	}
	reopened, err := OpenSidecarCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	return reopened
}

func TestSidecarCacheRoundtrip(t *testing.T) {
	cache, dir := openTestCache(t)

	meta := &SidecarMeta{
		Path:        "/src/A/p.jpg.json",
		Title:       "p.jpg",
		Taken:       time.Unix(1609459200, 0),
		Geo:         &GeoData{Latitude: 52.5, Longitude: 13.4, Altitude: 34},
		People:      []string{"Alice", "Bob"},
		Description: "a description",
	}
	mod := time.Unix(1700000000, 0)
	if err := cache.Put(meta, 512, mod); err != nil {
		t.Fatal(err)
	}

	cache = reopen(t, cache, dir)
	defer cache.Close()

	got, ok := cache.Get(meta.Path, 512, mod)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Title != meta.Title || !got.Taken.Equal(meta.Taken) {
		t.Errorf("got %+v", got)
	}
	if got.Geo == nil || got.Geo.Latitude != 52.5 || got.Geo.Altitude != 34 {
		t.Errorf("Geo = %+v", got.Geo)
	}
	if len(got.People) != 2 || got.People[0] != "Alice" {
		t.Errorf("People = %v", got.People)
	}
	if got.Description != meta.Description {
		t.Errorf("Description = %q", got.Description)
	}
}

func TestSidecarCacheInvalidatesOnChange(t *testing.T) {
	cache, dir := openTestCache(t)

	meta := &SidecarMeta{Path: "/src/A/p.jpg.json", Title: "p.jpg", Taken: time.Unix(1, 0)}
	mod := time.Unix(1700000000, 0)
	if err := cache.Put(meta, 512, mod); err != nil {
		t.Fatal(err)
	}

	cache = reopen(t, cache, dir)
	defer cache.Close()

	if _, ok := cache.Get(meta.Path, 513, mod); ok {
		t.Error("size change must invalidate the entry")
	}
	if _, ok := cache.Get(meta.Path, 512, mod.Add(time.Second)); ok {
		t.Error("mtime change must invalidate the entry")
	}
	if _, ok := cache.Get("/src/A/other.jpg.json", 512, mod); ok {
		t.Error("unknown path must miss")
	}
}

func TestSidecarCacheNilGeo(t *testing.T) {
	cache, dir := openTestCache(t)

	meta := &SidecarMeta{Path: "/src/A/p.jpg.json", Title: "p.jpg", Taken: time.Unix(1, 0)}
	mod := time.Unix(1700000000, 0)
	if err := cache.Put(meta, 100, mod); err != nil {
		t.Fatal(err)
	}

	cache = reopen(t, cache, dir)
	defer cache.Close()

	got, ok := cache.Get(meta.Path, 100, mod)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Geo != nil {
		t.Errorf("Geo = %+v, want nil", got.Geo)
	}
	if got.HasLocation() {
		t.Error("location invented by the cache")
	}
}

func TestSidecarCacheStats(t *testing.T) {
	cache, dir := openTestCache(t)

	mod := time.Unix(1700000000, 0)
	withGeo := &SidecarMeta{Path: "/a.json", Title: "a.jpg", Taken: time.Unix(1, 0),
		Geo: &GeoData{Latitude: 1, Longitude: 2}}
	without := &SidecarMeta{Path: "/b.json", Title: "b.jpg", Taken: time.Unix(1, 0)}
	if err := cache.Put(withGeo, 1, mod); err != nil {
		t.Fatal(err)
	}
	if err := cache.Put(without, 1, mod); err != nil {
		t.Fatal(err)
	}

	cache = reopen(t, cache, dir)
	defer cache.Close()

	total, geo := cache.Stats()
	if total != 2 || geo != 1 {
		t.Errorf("Stats = (%d, %d), want (2, 1)", total, geo)
	}
}

func TestSidecarCachePruneDeleted(t *testing.T) {
	cache, dir := openTestCache(t)

	mod := time.Unix(1700000000, 0)
	for _, path := range []string{"/a.json", "/b.json", "/c.json"} {
		meta := &SidecarMeta{Path: path, Title: "x.jpg", Taken: time.Unix(1, 0)}
		if err := cache.Put(meta, 1, mod); err != nil {
			t.Fatal(err)
		}
	}

	cache = reopen(t, cache, dir)
	defer cache.Close()

	pruned, err := cache.PruneDeleted(map[string]bool{"/a.json": true})
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 2 {
		t.Errorf("pruned %d entries, want 2", pruned)
	}
	if _, ok := cache.Get("/a.json", 1, mod); !ok {
		t.Error("surviving entry lost")
	}
	if _, ok := cache.Get("/b.json", 1, mod); ok {
		t.Error("pruned entry still readable")
	}
}

func TestParseSidecarCachedFallsThrough(t *testing.T) {
	// nil cache must behave exactly like a direct parse
	dir := t.TempDir()
	path := dir + "/p.jpg.json"
	writeFile(t, path, sidecarJSON("p.jpg", 1609459200))

	meta, err := ParseSidecarCached(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Title != "p.jpg" {
		t.Errorf("Title = %q", meta.Title)
	}
}
