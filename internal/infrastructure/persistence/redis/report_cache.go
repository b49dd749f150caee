package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gestao-notas/notas-hub/internal/domain/shared"
	"github.com/gestao-notas/notas-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// JSONStore is the part of Cache that ReportCache needs.
type JSONStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, dest any) error
}

// ReportCache implements student.ReportCache.
type ReportCache struct {
	store JSONStore
}

// NewReportCache creates a ReportCache over store (usually *Cache).
func NewReportCache(store JSONStore) *ReportCache {
	return &ReportCache{store: store}
}

var _ student.ReportCache = (*ReportCache)(nil)

// SetLatestReport caches report under report:latest.
func (c *ReportCache) SetLatestReport(ctx context.Context, report *student.Report, ttl time.Duration) error {
	if report == nil {
		return ErrCacheNilValue
	}
	if ttl == 0 {
		ttl = TTLReport
	}
	if err := c.store.Set(ctx, KeyLatestReport, report, ttl); err != nil {
		return fmt.Errorf("cache latest report: %w", err)
	}
	return nil
}

// GetLatestReport returns the cached report or shared.ErrReportNotFound
// when nothing is cached.
func (c *ReportCache) GetLatestReport(ctx context.Context) (*student.Report, error) {
	var report student.Report
	if err := c.store.Get(ctx, KeyLatestReport, &report); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrReportNotFound
		}
		return nil, fmt.Errorf("read latest report: %w", err)
	}
	if report.Rows == nil {
		report.Rows = []student.ReportRow{}
	}
	return &report, nil
}
