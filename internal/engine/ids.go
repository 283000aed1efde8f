package engine

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator generates change event ids.
// Implemented by ULIDGenerator (production) and testutil.SequenceGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// ULIDGenerator generates lexically sortable ULIDs.
//
// ULIDs embed a millisecond timestamp, so event ids sort by creation time
// in logs and traces.
//
// Thread-safety: safe for concurrent use via internal mutex; the monotonic
// entropy source is not.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewULIDGenerator creates a generator backed by crypto/rand.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Generate returns a new ULID string.
//
// Panics if entropy cannot be read (should never happen in practice).
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}
