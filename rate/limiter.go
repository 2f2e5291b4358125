// Package rate implements the per-client limiters guarding the public endpoints.
package rate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Checker reports whether the client identified by key may proceed.
type Checker interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Bucket is a token bucket per client, used as a coarse throttle in front of
// every route.
type Bucket struct {
	Expiry   time.Duration
	Burst    int
	LimitRPS float64
	clients  map[string]*clientLimiter
	mu       sync.Mutex
	done     chan struct{}
	once     sync.Once
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func NewBucket(burst int, expiry time.Duration, limitRPS float64) *Bucket {
	b := &Bucket{
		Expiry:   expiry,
		LimitRPS: limitRPS,
		Burst:    burst,
		clients:  make(map[string]*clientLimiter),
		done:     make(chan struct{}),
	}
	go b.refresh()
	return b
}

func (b *Bucket) Allow(_ context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cl, ok := b.clients[id]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(b.LimitRPS), b.Burst)}
		b.clients[id] = cl
	}
	cl.lastAccess = time.Now()
	return cl.limiter.Allow(), nil
}

// Close stops the background sweep.
func (b *Bucket) Close() {
	b.once.Do(func() { close(b.done) })
}

func (b *Bucket) refresh() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-t.C:
		}

		b.mu.Lock()
		for id, v := range b.clients {
			if time.Since(v.lastAccess) > b.Expiry {
				delete(b.clients, id)
			}
		}
		b.mu.Unlock()
	}
}
