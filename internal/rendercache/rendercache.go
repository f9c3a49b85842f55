// Package rendercache stores canonical renders keyed by content
// fingerprint for a short TTL.
package rendercache

import (
	"context"
	"errors"
	"time"

	"github.com/alphabot-ai/threadcache/internal/placeholder"
)

var (
	// ErrCacheMiss is returned by Get when no live entry exists.
	ErrCacheMiss = errors.New("render cache miss")
	// ErrBackendTimeout is returned when the backend did not answer in time.
	// Callers treat it as a miss.
	ErrBackendTimeout = errors.New("render cache backend timed out")
)

// CachedRender is an immutable canonical render.
type CachedRender struct {
	Key          string                    `json:"key"`
	Output       string                    `json:"output"`
	Declarations []placeholder.Declaration `json:"declarations"`
	StoredAt     time.Time                 `json:"stored_at"`
	TTL          time.Duration             `json:"ttl"`
}

// Cache is shared by all request handlers. Concurrent Puts for one key are
// allowed and the last write wins.
type Cache interface {
	Get(ctx context.Context, key string) (*CachedRender, error)
	Put(ctx context.Context, key string, render *CachedRender, ttl time.Duration) error
}
