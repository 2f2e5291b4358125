package rate

import (
	"context"
	"sync"
	"time"
)

// Window admits at most Max requests per client in a window that opens with
// the client's first request.
type Window struct {
	Max  int
	Size time.Duration

	now     func() time.Time
	mu      sync.Mutex
	clients map[string]*windowCount
	swept   time.Time
}

type windowCount struct {
	start time.Time
	n     int
}

func NewWindow(max int, size time.Duration) *Window {
	return &Window{
		Max:     max,
		Size:    size,
		now:     time.Now,
		clients: make(map[string]*windowCount),
	}
}

func (w *Window) Allow(_ context.Context, id string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.sweep(now)

	c, ok := w.clients[id]
	if !ok || now.Sub(c.start) >= w.Size {
		w.clients[id] = &windowCount{start: now, n: 1}
		return true, nil
	}

	if c.n >= w.Max {
		return false, nil
	}
	c.n++
	return true, nil
}

// sweep drops closed windows at most once per window size. Callers hold mu.
func (w *Window) sweep(now time.Time) {
	if now.Sub(w.swept) < w.Size {
		return
	}
	for id, c := range w.clients {
		if now.Sub(c.start) >= w.Size {
			delete(w.clients, id)
		}
	}
	w.swept = now
}
