package application

import (
	"strings"
	"sync"
	"time"
)

// reportCache keeps recently computed utilization reports so dashboards that
// poll the same resource window do not rescan the store between writes.
type reportCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]reportCacheEntry
	generation uint64
}

type reportCacheEntry struct {
	report    UtilizationReport
	expiresAt time.Time
}

func newReportCache(ttl time.Duration, maxEntries int, now func() time.Time) *reportCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &reportCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]reportCacheEntry),
	}
}

func (c *reportCache) Get(key string) (UtilizationReport, bool) {
	if c == nil {
		return UtilizationReport{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return UtilizationReport{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return UtilizationReport{}, false
	}
	return cloneUtilizationReport(entry.report), true
}

// Generation identifies the store state reports are computed against. Capture
// it before reading events and pass it to Store.
func (c *reportCache) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Store caches report unless a write was invalidated since generation was
// captured, in which case the report may predate that write and is dropped.
func (c *reportCache) Store(key string, report UtilizationReport, generation uint64) {
	if c == nil {
		return
	}
	cloned := cloneUtilizationReport(report)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return
	}
	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = reportCacheEntry{report: cloned, expiresAt: expiry}
}

// Invalidate drops every cached report. Called after each committed write.
func (c *reportCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]reportCacheEntry)
	c.generation++
	c.mu.Unlock()
}

func (c *reportCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *reportCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// evictOneLocked removes the entry closest to expiry.
func (c *reportCache) evictOneLocked() {
	var victim string
	var earliest time.Time
	for key, entry := range c.entries {
		if victim == "" || entry.expiresAt.Before(earliest) {
			victim = key
			earliest = entry.expiresAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
	}
}

func cloneUtilizationReport(report UtilizationReport) UtilizationReport {
	out := report
	if report.Availability != nil {
		out.Availability = make([]AvailabilitySlot, len(report.Availability))
		copy(out.Availability, report.Availability)
	}
	out.BookedEventIDs = cloneStrings(report.BookedEventIDs)
	return out
}

func buildReportCacheKey(resourceID string, from, to time.Time, slot time.Duration) string {
	builder := strings.Builder{}
	builder.WriteString(resourceID)
	builder.WriteString("|")
	builder.WriteString(from.UTC().Format(time.RFC3339Nano))
	builder.WriteString("|")
	builder.WriteString(to.UTC().Format(time.RFC3339Nano))
	builder.WriteString("|")
	builder.WriteString(slot.String())
	return builder.String()
}
