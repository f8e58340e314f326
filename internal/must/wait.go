package must

import (
	"context"
	"time"
)

// Wait implements a linear backoff capped at max.
type Wait struct {
	max        time.Duration
	occurences int
}

func NewWait(max time.Duration) *Wait {
	return &Wait{
		max:        max,
		occurences: 0,
	}
}

func (w *Wait) Reset() {
	w.occurences = 0
}

// Linearly sleeps step times the number of previous calls, or returns early
// with false when ctx is done.
func (w *Wait) Linearly(ctx context.Context, step time.Duration) bool {
	sleep := min(step*time.Duration(w.occurences), w.max)
	w.occurences++
	select {
	case <-ctx.Done():
		return false
	case <-time.After(sleep):
		return true
	}
}
