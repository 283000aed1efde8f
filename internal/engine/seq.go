package engine

import (
	"sync/atomic"

	"github.com/roach88/rollcall/internal/attendance"
)

// Sequencer numbers the change events one engine publishes. Numbers start at
// 1 and only grow, so a subscriber can order events for a sheet without
// trusting wall time. They mean nothing across engine restarts.
type Sequencer struct {
	last atomic.Int64
}

// Stamp assigns ev the next sequence number.
func (q *Sequencer) Stamp(ev *attendance.ChangeEvent) {
	ev.Seq = q.last.Add(1)
}

// Last reports the most recently assigned number, 0 before the first event.
func (q *Sequencer) Last() int64 {
	return q.last.Load()
}
