package types

import (
	"crypto/rand"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

// idMu serializes access to the monotonic entropy source so that ids minted in
// the same millisecond still sort in mint order. This is what lets the store
// break created_at ties by insertion order.
var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a fresh ULID string. Ids are lexicographically sortable in
// creation order, including within a single millisecond.
func NewID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Now(), idEntropy).String()
}

// NormalizeID reduces an engine-native composite id such as "sessions:abc" to
// its id portion. Plain ids pass through unchanged. Callers and serialized
// responses never see the engine's internal form.
func NormalizeID(id string) string {
	if i := strings.LastIndexByte(id, ':'); i >= 0 {
		return id[i+1:]
	}
	return id
}
