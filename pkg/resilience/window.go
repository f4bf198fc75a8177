package resilience

import (
	"context"
	"sync"
	"time"
)

// WindowOpts configures a sliding-window limiter.
type WindowOpts struct {
	// MaxRequests is the number of calls allowed inside any Window.
	MaxRequests int
	// Window is the length of the sliding window.
	Window time.Duration
}

// DefaultImageWindow is the quota for image embedding calls.
var DefaultImageWindow = WindowOpts{MaxRequests: 40, Window: time.Minute}

// Window is a sliding-window-log rate limiter. It keeps the timestamps of
// the calls made inside the window and makes callers wait for the oldest one
// to age out once the window is full. Safe for concurrent use; the lock is
// not held while a caller waits, so a cancelled waiter returns immediately.
type Window struct {
	mu     sync.Mutex
	opts   WindowOpts
	stamps []time.Time
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

// NewWindow creates a sliding-window limiter. Non-positive options fall back
// to DefaultImageWindow.
func NewWindow(opts WindowOpts) *Window {
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = DefaultImageWindow.MaxRequests
	}
	if opts.Window <= 0 {
		opts.Window = DefaultImageWindow.Window
	}
	return &Window{opts: opts, now: time.Now, sleep: sleepCtx}
}

// Acquire blocks until a slot is available and then records the call.
// It only fails when ctx is done while waiting.
func (w *Window) Acquire(ctx context.Context) error {
	for {
		w.mu.Lock()
		now := w.now()
		w.evict(now)
		if len(w.stamps) < w.opts.MaxRequests {
			w.stamps = append(w.stamps, now)
			w.mu.Unlock()
			return nil
		}
		wait := w.stamps[0].Add(w.opts.Window).Sub(now)
		w.mu.Unlock()

		// Another waiter may take the freed slot first; re-check after waking.
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// evict drops timestamps older than the window. Must hold mu.
func (w *Window) evict(now time.Time) {
	cutoff := now.Add(-w.opts.Window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
