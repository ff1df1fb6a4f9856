package ids

import (
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier used for queued
// notification and audit events.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

var (
	requestMu  sync.Mutex
	requestRnd = mathrand.New(mathrand.NewSource(time.Now().UnixNano() ^ 0x5eed))
)

// Request returns a random six-digit request correlation id. Collisions
// are tolerated: the id only ties log lines of one request together.
func Request() string {
	requestMu.Lock()
	defer requestMu.Unlock()
	return fmt.Sprintf("%06d", requestRnd.Intn(900000)+100000)
}
