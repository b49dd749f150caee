package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestao-notas/notas-hub/internal/domain/shared"
	"github.com/gestao-notas/notas-hub/internal/domain/student"
)

// memStore keeps encoded values in a map, using the same encoding as Cache.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	data, err := encode(key, value, ttl)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Get(_ context.Context, key string, dest any) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	data, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return ErrCacheMiss
	}
	return decode(data, dest)
}

func sampleReport() *student.Report {
	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	return student.BuildReport("0b6f6a8e-3c55-4a4f-9d4e-1b0d2f7f0e11", at, []student.Student{
		{ID: "1", Name: "Ana", Subjects: []student.Subject{{Name: "Matemática", Grades: []student.Grade{7, 9}}}},
		{ID: "2", Name: "Bruno", Subjects: []student.Subject{}},
	})
}

func TestReportCache_SetAndGet(t *testing.T) {
	store := newMemStore()
	cache := NewReportCache(store)
	ctx := context.Background()

	require.NoError(t, cache.SetLatestReport(ctx, sampleReport(), time.Minute))
	assert.Equal(t, time.Minute, store.ttls[KeyLatestReport])
	assert.Contains(t, string(store.data[KeyLatestReport]), `"student_id":"1"`)

	got, err := cache.GetLatestReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleReport(), got)
}

func TestReportCache_DefaultTTL(t *testing.T) {
	store := newMemStore()
	require.NoError(t, NewReportCache(store).SetLatestReport(context.Background(), sampleReport(), 0))
	assert.Equal(t, TTLReport, store.ttls[KeyLatestReport])
}

func TestReportCache_Miss(t *testing.T) {
	_, err := NewReportCache(newMemStore()).GetLatestReport(context.Background())
	assert.ErrorIs(t, err, shared.ErrReportNotFound)
}

func TestReportCache_Errors(t *testing.T) {
	store := newMemStore()
	cache := NewReportCache(store)

	assert.ErrorIs(t, cache.SetLatestReport(context.Background(), nil, time.Minute), ErrCacheNilValue)

	store.data[KeyLatestReport] = []byte("{")
	_, err := cache.GetLatestReport(context.Background())
	assert.ErrorIs(t, err, ErrCacheSerialization)

	store.err = errors.New("connection refused")
	_, err = cache.GetLatestReport(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, shared.ErrReportNotFound))
}

func TestEncode_Validation(t *testing.T) {
	_, err := encode("", 1, 0)
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)
	_, err = encode("k", nil, 0)
	assert.ErrorIs(t, err, ErrCacheNilValue)
	_, err = encode("k", 1, -time.Second)
	assert.ErrorIs(t, err, ErrCacheInvalidTTL)
	_, err = encode("k", make(chan int), 0)
	assert.ErrorIs(t, err, ErrCacheSerialization)
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "cache.internal"
	cfg.Port = 6380

	opts := cfg.Options()
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, cfg.PoolSize, opts.PoolSize)
}

func TestCache_UnreachableServer(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	cache := NewCacheFromClient(client)
	defer cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.Error(t, cache.Ping(ctx))
	_, err := NewReportCache(cache).GetLatestReport(ctx)
	require.Error(t, err)
	assert.False(t, errors.Is(err, shared.ErrReportNotFound))
	assert.ErrorIs(t, cache.Get(ctx, "", &struct{}{}), ErrCacheKeyEmpty)
}
