package rendercache

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Instrumented counts cache outcomes by result label: hit, miss, timeout,
// error, put and put_error.
type Instrumented struct {
	next     Cache
	requests *prometheus.CounterVec
}

// NewInstrumented wraps next and registers its counter with reg.
func NewInstrumented(next Cache, reg prometheus.Registerer) (*Instrumented, error) {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threadcache",
			Name:      "render_cache_requests_total",
			Help:      "Render cache operations by result.",
		},
		[]string{"result"},
	)
	if err := reg.Register(requests); err != nil {
		return nil, err
	}
	return &Instrumented{next: next, requests: requests}, nil
}

func (c *Instrumented) Get(ctx context.Context, key string) (*CachedRender, error) {
	render, err := c.next.Get(ctx, key)
	switch {
	case err == nil:
		c.requests.WithLabelValues("hit").Inc()
	case errors.Is(err, ErrCacheMiss):
		c.requests.WithLabelValues("miss").Inc()
	case errors.Is(err, ErrBackendTimeout):
		c.requests.WithLabelValues("timeout").Inc()
	default:
		c.requests.WithLabelValues("error").Inc()
	}
	return render, err
}

func (c *Instrumented) Put(ctx context.Context, key string, render *CachedRender, ttl time.Duration) error {
	err := c.next.Put(ctx, key, render, ttl)
	if err != nil {
		c.requests.WithLabelValues("put_error").Inc()
	} else {
		c.requests.WithLabelValues("put").Inc()
	}
	return err
}

var _ Cache = (*Instrumented)(nil)
