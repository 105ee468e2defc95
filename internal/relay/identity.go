package relay

import (
	"strconv"
	"sync/atomic"
)

// ConnectionID identifies one session for the lifetime of the process.
type ConnectionID uint64

func (id ConnectionID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

var lastConnectionID atomic.Uint64

// NextConnectionID returns a fresh id. Ids start at 1 and are never reused.
func NextConnectionID() ConnectionID {
	return ConnectionID(lastConnectionID.Add(1))
}
