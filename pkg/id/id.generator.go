package id

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generate returns a prefixed, lexicographically sortable ID.
// Example: txn_01J8ZQ6K6T1V5W2X3Y4Z5A6B7C
func Generate(prefix string) string {
	u := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	return prefix + "_" + u.String()
}
