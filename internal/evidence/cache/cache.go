// Package cache decorates evidence sources with a Redis read-through cache.
// The TTL doubles as a retention bound for sensitive registry data, so entries
// are never written without an expiry. Misses and lookup failures fall through
// to the underlying source; a cold or down cache only costs latency.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"swiftclaim/internal/evidence/flight"
	"swiftclaim/internal/evidence/medical"
)

// Cmdable is the subset of the go-redis API the cache needs.
type Cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

type cache struct {
	rdb    Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func (c *cache) get(ctx context.Context, key string, out any) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WarnContext(ctx, "evidence cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.WarnContext(ctx, "evidence cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *cache) put(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "evidence cache write failed", "key", key, "error", err)
	}
}

// MedicalSource wraps a medical source with caching. Only found records are
// cached; absence must always re-check the source of truth.
type MedicalSource struct {
	next  medical.Source
	cache cache
}

// NewMedical creates a caching medical source.
func NewMedical(next medical.Source, rdb Cmdable, ttl time.Duration, logger *slog.Logger) *MedicalSource {
	return &MedicalSource{next: next, cache: cache{rdb: rdb, ttl: ttl, logger: logger}}
}

// Find implements medical.Source.
func (s *MedicalSource) Find(ctx context.Context, recordID string) (*medical.Record, error) {
	key := fmt.Sprintf("evidence:medical:%s", recordID)
	var cached medical.Record
	if s.cache.get(ctx, key, &cached) {
		return &cached, nil
	}
	record, err := s.next.Find(ctx, recordID)
	if err != nil {
		return nil, err
	}
	s.cache.put(ctx, key, record)
	return record, nil
}

// FlightSource wraps a flight source with caching.
type FlightSource struct {
	next  flight.Source
	cache cache
}

// NewFlight creates a caching flight source.
func NewFlight(next flight.Source, rdb Cmdable, ttl time.Duration, logger *slog.Logger) *FlightSource {
	return &FlightSource{next: next, cache: cache{rdb: rdb, ttl: ttl, logger: logger}}
}

// Find implements flight.Source.
func (s *FlightSource) Find(ctx context.Context, flightID uint64) (*flight.Record, error) {
	key := "evidence:flight:" + strconv.FormatUint(flightID, 10)
	var cached flight.Record
	if s.cache.get(ctx, key, &cached) {
		return &cached, nil
	}
	record, err := s.next.Find(ctx, flightID)
	if err != nil {
		return nil, err
	}
	s.cache.put(ctx, key, record)
	return record, nil
}
