package status

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewSessionID returns a ULID for a daemon session started at t. IDs sort
// by start time.
func NewSessionID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// SessionTime returns the start time encoded in a session ID.
func SessionTime(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
