package store

import (
	"container/list"
	"log/slog"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/decomp-dev/reportcore/internal/report"
)

// Header is the report shape returned by GetReport: measures, categories,
// and the report's unit keys in order — bodies are not loaded. Header and
// report.Report (the body-loaded shape) are the two concrete variants the
// design notes describe as a tagged sum over the unit slot.
type Header struct {
	ReportID      int64
	ProjectID     int64
	Version       string
	Commit        string
	Message       string
	TimestampUnix int64
	FormatVersion int32
	Measures      report.Measures
	Categories    []report.ReportCategory
	UnitKeys      []report.UnitKey
}

// indexKey is the report index cache's key: (owner, repo, commit, version),
// ASCII-lowercased so lookups are case-insensitive without relying on the
// database's COLLATE NOCASE for in-memory hits.
type indexKey struct {
	owner, repo, commit, version string
}

func newIndexKey(owner, repo, commit, version string) indexKey {
	return indexKey{
		owner:   strings.ToLower(owner),
		repo:    strings.ToLower(repo),
		commit:  strings.ToLower(commit),
		version: strings.ToLower(version),
	}
}

// indexCache bounds the report index cache by entry count. Reads never
// block writes to other keys — the underlying lru.Cache is internally
// locked per call, not held across the caller's own work.
type indexCache struct {
	lru *lru.Cache[indexKey, *Header]
	log *slog.Logger
}

const defaultIndexCacheEntries = 4096

func newIndexCache(log *slog.Logger) *indexCache {
	c := &indexCache{log: log}
	onEvict := func(key indexKey, _ *Header) {
		c.log.Debug("report index cache evicted entry",
			"owner", key.owner, "repo", key.repo, "commit", key.commit, "version", key.version)
	}
	l, err := lru.NewWithEvict[indexKey, *Header](defaultIndexCacheEntries, onEvict)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// defaultIndexCacheEntries never is.
		panic(err)
	}
	c.lru = l
	return c
}

func (c *indexCache) get(owner, repo, commit, version string) (*Header, bool) {
	return c.lru.Get(newIndexKey(owner, repo, commit, version))
}

func (c *indexCache) put(owner, repo, commit, version string, h *Header) {
	c.lru.Add(newIndexKey(owner, repo, commit, version), h)
}

// bodyCache bounds the unit body cache by the sum of encoded sizes (the
// compressed on-disk size, which is also a reasonable proxy for decoded
// memory footprint), not by entry count — a single huge unit shouldn't be
// able to evict thousands of small ones via a count-based policy.
type bodyCache struct {
	mu        sync.Mutex
	maxBytes  int64
	curBytes  int64
	entries   map[report.UnitKey]*list.Element
	order     *list.List // most-recently-used at the front
	log       *slog.Logger
}

type bodyCacheEntry struct {
	key      report.UnitKey
	unit     *report.ReportUnit
	sizeHint int64
}

const defaultBodyCacheBytes = 256 * 1024 * 1024

func newBodyCache(log *slog.Logger) *bodyCache {
	return &bodyCache{
		maxBytes: defaultBodyCacheBytes,
		entries:  make(map[report.UnitKey]*list.Element),
		order:    list.New(),
		log:      log,
	}
}

func (c *bodyCache) get(key report.UnitKey) (*report.ReportUnit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*bodyCacheEntry).unit, true
}

// put inserts unit under key, weighted by sizeHint (its compressed
// on-disk size), evicting least-recently-used entries until the cache is
// back under budget.
func (c *bodyCache) put(key report.UnitKey, unit *report.ReportUnit, sizeHint int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		entry := el.Value.(*bodyCacheEntry)
		c.curBytes += sizeHint - entry.sizeHint
		entry.unit, entry.sizeHint = unit, sizeHint
		c.evictLocked()
		return
	}

	el := c.order.PushFront(&bodyCacheEntry{key: key, unit: unit, sizeHint: sizeHint})
	c.entries[key] = el
	c.curBytes += sizeHint
	c.evictLocked()
}

func (c *bodyCache) evictLocked() {
	for c.curBytes > c.maxBytes {
		back := c.order.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*bodyCacheEntry)
		c.order.Remove(back)
		delete(c.entries, entry.key)
		c.curBytes -= entry.sizeHint
		c.log.Debug("unit body cache evicted entry", "unit_key", entry.key.String())
	}
}
