package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const (
	schedulesPrefix = "schedules"
	patientPrefix   = "patient"
	healthKey       = "health_check"

	maxKeyLength = 200
	allSentinel  = "all"
)

// Cache is a Redis-backed read-through cache for availability and patient
// lookups. A nil client disables it: reads miss and writes are dropped.
// Redis errors are logged and treated the same way.
type Cache struct {
	client  *redis.Client
	metrics *metrics.CacheMetrics
	logger  *logging.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

var _ scheduling.AvailabilityCache = (*Cache)(nil)

// New creates a cache over client. client may be nil.
func New(client *redis.Client, m *metrics.CacheMetrics, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{client: client, metrics: m, logger: logger}
}

// Enabled reports whether a Redis client is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Key builds a deterministic key from prefix and params. Params are sorted
// by name; keys longer than 200 bytes collapse to prefix:hash:<xxhash>.
func Key(prefix string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(":")
	for i, k := range names {
		if i > 0 {
			b.WriteString(":")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(params[k])
	}
	key := b.String()
	if len(key) > maxKeyLength {
		return fmt.Sprintf("%s:hash:%016x", prefix, xxhash.Sum64String(key))
	}
	return key
}

// ScheduleKey is the cache key for an availability query. Empty date and
// zero doctor id mean "all".
func ScheduleKey(date string, doctorID int64) string {
	if date == "" {
		date = allSentinel
	}
	doctor := allSentinel
	if doctorID != 0 {
		doctor = strconv.FormatInt(doctorID, 10)
	}
	return Key(schedulesPrefix, map[string]string{"date": date, "doctor_id": doctor})
}

func patientKey(id int64) string {
	return patientPrefix + ":" + strconv.FormatInt(id, 10)
}

type schedulesEntry struct {
	Schedules  []scheduling.AvailableSlot `json:"schedules"`
	CachedAt   time.Time                  `json:"cached_at"`
	TotalCount int                        `json:"total_count"`
}

type patientEntry struct {
	Patient  scheduling.Patient `json:"patient"`
	CachedAt time.Time          `json:"cached_at"`
}

// GetSchedules returns cached slots for the query, if present.
func (c *Cache) GetSchedules(ctx context.Context, date string, doctorID int64) ([]scheduling.AvailableSlot, bool) {
	if !c.Enabled() {
		return nil, false
	}
	key := ScheduleKey(date, doctorID)
	var entry schedulesEntry
	if !c.getJSON(ctx, "schedules", key, &entry) {
		return nil, false
	}
	c.logger.Debug("schedule cache hit", "cache_key", key, "count", entry.TotalCount)
	if entry.Schedules == nil {
		entry.Schedules = []scheduling.AvailableSlot{}
	}
	return entry.Schedules, true
}

// SetSchedules stores slots under the query's key for ttl.
func (c *Cache) SetSchedules(ctx context.Context, slots []scheduling.AvailableSlot, date string, doctorID int64, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	key := ScheduleKey(date, doctorID)
	c.setJSON(ctx, key, schedulesEntry{
		Schedules:  slots,
		CachedAt:   time.Now().UTC(),
		TotalCount: len(slots),
	}, ttl)
}

// InvalidateSchedules drops every schedule entry plus any key naming the
// doctor or date. It returns the number of keys deleted.
func (c *Cache) InvalidateSchedules(ctx context.Context, doctorID int64, date string) int {
	if !c.Enabled() {
		return 0
	}
	patterns := []string{schedulesPrefix + ":*"}
	if doctorID != 0 {
		patterns = append(patterns, fmt.Sprintf("%s:*doctor_id=%d*", schedulesPrefix, doctorID))
	}
	if date != "" {
		patterns = append(patterns, fmt.Sprintf("%s:*date=%s*", schedulesPrefix, date))
	}

	deleted := 0
	for _, pattern := range patterns {
		keys, err := c.client.Keys(ctx, pattern).Result()
		if err != nil {
			c.warn("invalidate", err, "pattern", pattern)
			return deleted
		}
		if len(keys) == 0 {
			continue
		}
		n, err := c.client.Del(ctx, keys...).Result()
		if err != nil {
			c.warn("invalidate", err, "pattern", pattern)
			return deleted
		}
		deleted += int(n)
	}
	c.metrics.ObserveInvalidation(deleted)
	c.logger.Info("invalidated schedule cache", "doctor_id", doctorID, "date", date, "deleted", deleted)
	return deleted
}

// GetPatient returns a cached patient, if present.
func (c *Cache) GetPatient(ctx context.Context, id int64) (*scheduling.Patient, bool) {
	if !c.Enabled() {
		return nil, false
	}
	var entry patientEntry
	if !c.getJSON(ctx, "patient", patientKey(id), &entry) {
		return nil, false
	}
	return &entry.Patient, true
}

// SetPatient caches p for ttl.
func (c *Cache) SetPatient(ctx context.Context, p *scheduling.Patient, ttl time.Duration) {
	if !c.Enabled() || p == nil {
		return
	}
	c.setJSON(ctx, patientKey(p.ID), patientEntry{Patient: *p, CachedAt: time.Now().UTC()}, ttl)
}

// InvalidatePatient drops the cached patient.
func (c *Cache) InvalidatePatient(ctx context.Context, id int64) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Del(ctx, patientKey(id)).Err(); err != nil {
		c.warn("invalidate_patient", err, "patient_id", id)
	}
}

func (c *Cache) getJSON(ctx context.Context, namespace, key string, dst any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn("get", err, "cache_key", key)
		}
		c.miss(namespace)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.warn("decode", err, "cache_key", key)
		c.miss(namespace)
		return false
	}
	c.hits.Add(1)
	c.metrics.ObserveLookup(namespace, true)
	return true
}

func (c *Cache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.warn("encode", err, "cache_key", key)
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.warn("set", err, "cache_key", key)
		return
	}
	c.logger.Debug("cached entry", "cache_key", key, "ttl", ttl.String())
}

func (c *Cache) miss(namespace string) {
	c.misses.Add(1)
	c.metrics.ObserveLookup(namespace, false)
}

func (c *Cache) warn(op string, err error, args ...any) {
	c.metrics.ObserveError(op)
	c.logger.Warn("cache operation failed", append([]any{"op", op, "error", err}, args...)...)
}

// Stats summarizes cache contents and traffic.
type Stats struct {
	Status               string  `json:"status"`
	Reason               string  `json:"reason,omitempty"`
	Error                string  `json:"error,omitempty"`
	TotalKeys            int64   `json:"total_keys"`
	ScheduleCacheEntries int     `json:"schedule_cache_entries"`
	PatientCacheEntries  int     `json:"patient_cache_entries"`
	MemoryUsage          string  `json:"memory_usage"`
	CacheHits            int64   `json:"cache_hits"`
	CacheMisses          int64   `json:"cache_misses"`
	HitRate              float64 `json:"hit_rate"`
}

// Stats reports key counts and the hit rate seen by this process.
func (c *Cache) Stats(ctx context.Context) Stats {
	if !c.Enabled() {
		return Stats{Status: "disabled", Reason: "Redis not available", MemoryUsage: "unknown"}
	}
	total, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return Stats{Status: "error", Error: err.Error(), MemoryUsage: "unknown"}
	}
	scheduleKeys, err := c.client.Keys(ctx, schedulesPrefix+":*").Result()
	if err != nil {
		return Stats{Status: "error", Error: err.Error(), MemoryUsage: "unknown"}
	}
	patientKeys, err := c.client.Keys(ctx, patientPrefix+":*").Result()
	if err != nil {
		return Stats{Status: "error", Error: err.Error(), MemoryUsage: "unknown"}
	}

	hits, misses := c.hits.Load(), c.misses.Load()
	stats := Stats{
		Status:               "active",
		TotalKeys:            total,
		ScheduleCacheEntries: len(scheduleKeys),
		PatientCacheEntries:  len(patientKeys),
		MemoryUsage:          c.memoryUsage(ctx),
		CacheHits:            hits,
		CacheMisses:          misses,
	}
	if hits+misses > 0 {
		rate := float64(hits) / float64(hits+misses) * 100
		stats.HitRate = float64(int64(rate*100+0.5)) / 100
	}
	return stats
}

// memoryUsage reads used_memory_human from INFO memory. Servers that do not
// report the section yield "unknown".
func (c *Cache) memoryUsage(ctx context.Context) string {
	info, err := c.client.Info(ctx, "memory").Result()
	if err != nil {
		return "unknown"
	}
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory_human:"); ok {
			return v
		}
	}
	return "unknown"
}

// HealthStatus is the result of a cache round-trip probe.
type HealthStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Healthy reports whether the probe succeeded.
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}

// Health writes, reads back and deletes a probe key.
func (c *Cache) Health(ctx context.Context) HealthStatus {
	now := time.Now().UTC()
	if !c.Enabled() {
		return HealthStatus{Status: "unhealthy", Message: "Redis not available", Timestamp: now}
	}
	if err := c.client.Set(ctx, healthKey, "ok", 10*time.Second).Err(); err != nil {
		return HealthStatus{Status: "unhealthy", Message: fmt.Sprintf("Redis health check failed: %v", err), Timestamp: now}
	}
	got, err := c.client.Get(ctx, healthKey).Result()
	if err != nil {
		return HealthStatus{Status: "unhealthy", Message: fmt.Sprintf("Redis health check failed: %v", err), Timestamp: now}
	}
	if err := c.client.Del(ctx, healthKey).Err(); err != nil {
		c.warn("health", err)
	}
	if got != "ok" {
		return HealthStatus{Status: "unhealthy", Message: "Redis read/write test failed", Timestamp: now}
	}
	return HealthStatus{Status: "healthy", Message: "Redis connection working", Timestamp: now}
}

// Clear flushes the selected Redis database.
func (c *Cache) Clear(ctx context.Context) error {
	if !c.Enabled() {
		return errors.New("cache: redis not available")
	}
	if err := c.client.FlushDB(ctx).Err(); err != nil {
		c.warn("clear", err)
		return fmt.Errorf("cache: clear: %w", err)
	}
	c.logger.Info("cache cleared")
	return nil
}
