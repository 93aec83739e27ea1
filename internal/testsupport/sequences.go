package testsupport

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Global counter for generating unique sequential IDs in tests
var testSequence = uint64(time.Now().UnixNano() % 1000000)

// NextSequence returns next unique sequence number
func NextSequence() uint64 {
	return atomic.AddUint64(&testSequence, 1)
}

// UniqueTicker generates a ticker that is valid on the wire and unique across test runs.
// Example: UniqueTicker("T") -> "T483920"
func UniqueTicker(prefix string) string {
	return fmt.Sprintf("%s%06d", prefix, NextSequence()%1000000)
}
