package service

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/madrasah-api/internal/models"
)

// StudentCacheConfig holds TTLs for cached student reads.
type StudentCacheConfig struct {
	TTL          time.Duration
	TombstoneTTL time.Duration
	SummaryTTL   time.Duration
}

// cachedStudent is the stored cache value. Version orders entries for the same
// key: a write only lands when its version is greater than the stored one. A
// deleted student is kept as a tombstone so late writers cannot restore it.
type cachedStudent struct {
	Version int64           `json:"version"`
	Deleted bool            `json:"deleted,omitempty"`
	Student *models.Student `json:"student,omitempty"`
}

// entryVersion maps a row version onto the cache ordering. A tombstone written
// at row version v outranks the live snapshot of v, while a re-created student
// always carries a later row version than the one it was deleted at.
func entryVersion(rowVersion int64, deleted bool) int64 {
	v := rowVersion * 2
	if deleted {
		v++
	}
	return v
}

// StudentCache layers tenant-prefixed keys over CacheService. Every student
// write is version guarded; when a write after commit fails the key is dropped
// so the next read goes to the database.
type StudentCache struct {
	cache *CacheService
	cfg   StudentCacheConfig
}

// NewStudentCache wraps cache with student keys and TTL defaults.
func NewStudentCache(cache *CacheService, cfg StudentCacheConfig) *StudentCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.TombstoneTTL <= 0 {
		cfg.TombstoneTTL = 2 * cfg.TTL
	}
	if cfg.SummaryTTL <= 0 {
		cfg.SummaryTTL = time.Minute
	}
	return &StudentCache{cache: cache, cfg: cfg}
}

func studentCacheKey(tenant models.TenantID, studentID string) string {
	return fmt.Sprintf("tenant:%s:student:%s", tenant, studentID)
}

func summaryCacheKey(tenant models.TenantID) string {
	return fmt.Sprintf("tenant:%s:students:summary", tenant)
}

// load returns the cached student. found is false on a miss; a tombstone is
// reported as found with a nil student.
func (c *StudentCache) load(ctx context.Context, tenant models.TenantID, studentID string) (*models.Student, bool) {
	if c == nil {
		return nil, false
	}
	var entry cachedStudent
	hit, err := c.cache.Get(ctx, studentCacheKey(tenant, studentID), &entry)
	if err != nil || !hit {
		return nil, false
	}
	if entry.Deleted || entry.Student == nil {
		return nil, true
	}
	return entry.Student, true
}

// fill caches a student read from the database. It never replaces a newer
// snapshot or a tombstone.
func (c *StudentCache) fill(ctx context.Context, student *models.Student) {
	if c == nil || student == nil {
		return
	}
	entry := cachedStudent{Version: entryVersion(student.Version, false), Student: student}
	_, _ = c.cache.SetIfNewer(ctx, studentCacheKey(student.TenantID, student.StudentID), entry, entry.Version, c.cfg.TTL)
}

// store publishes a committed student and drops the tenant summary.
func (c *StudentCache) store(ctx context.Context, student *models.Student) {
	if c == nil || student == nil {
		return
	}
	entry := cachedStudent{Version: entryVersion(student.Version, false), Student: student}
	c.write(ctx, studentCacheKey(student.TenantID, student.StudentID), entry, c.cfg.TTL)
	_ = c.cache.Delete(ctx, summaryCacheKey(student.TenantID))
}

// tombstone marks a student deleted at the given row version.
func (c *StudentCache) tombstone(ctx context.Context, tenant models.TenantID, studentID string, rowVersion int64) {
	if c == nil {
		return
	}
	entry := cachedStudent{Version: entryVersion(rowVersion, true), Deleted: true}
	c.write(ctx, studentCacheKey(tenant, studentID), entry, c.cfg.TombstoneTTL)
	_ = c.cache.Delete(ctx, summaryCacheKey(tenant))
}

func (c *StudentCache) write(ctx context.Context, key string, entry cachedStudent, ttl time.Duration) {
	if _, err := c.cache.SetIfNewer(ctx, key, entry, entry.Version, ttl); err != nil {
		_ = c.cache.Delete(ctx, key)
	}
}

func (c *StudentCache) loadSummary(ctx context.Context, tenant models.TenantID) (*models.StudentSummary, bool) {
	if c == nil {
		return nil, false
	}
	var summary models.StudentSummary
	hit, err := c.cache.Get(ctx, summaryCacheKey(tenant), &summary)
	if err != nil || !hit {
		return nil, false
	}
	return &summary, true
}

func (c *StudentCache) storeSummary(ctx context.Context, tenant models.TenantID, summary *models.StudentSummary) {
	if c == nil || summary == nil {
		return
	}
	_ = c.cache.Set(ctx, summaryCacheKey(tenant), summary, c.cfg.SummaryTTL)
}
