package naming

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"time"
)

// maxCompactTimestamp is 36^7, the first timestamp that no longer fits in
// seven base36 characters.
const maxCompactTimestamp = 78364164096

// NewCompactID returns a 12 character lowercase base36 id: a 7 character
// zero-padded Unix timestamp followed by 5 random characters. Ids sort by
// creation second.
func NewCompactID() (string, error) {
	return compactIDAt(time.Now().UTC())
}

func compactIDAt(t time.Time) (string, error) {
	ts := t.Unix()
	if ts < 0 || ts >= maxCompactTimestamp {
		return "", fmt.Errorf("timestamp %d out of range for compact id", ts)
	}
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	r := (uint64(b[0])<<16 | uint64(b[1])<<8 | uint64(b[2])) % (36 * 36 * 36 * 36 * 36)
	return fmt.Sprintf("%07s%05s", strconv.FormatInt(ts, 36), strconv.FormatUint(r, 36)), nil
}

// NewSessionID returns "ses-" followed by a compact id.
func NewSessionID() string {
	id, err := NewCompactID()
	if err != nil {
		// crypto/rand failures are not recoverable here; fall back to the clock.
		id = strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return "ses-" + id
}
