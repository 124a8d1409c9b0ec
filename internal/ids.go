package internal

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// LocalSessionPrefix marks ids minted by the local store
const LocalSessionPrefix = "local_"

var lastLocalID atomic.Int64

// NewMessageID returns a time-ordered message id
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewLocalSessionID returns "local_<millis>", strictly increasing within the
// process even when called twice in the same millisecond.
func NewLocalSessionID() string {
	for {
		last := lastLocalID.Load()
		next := time.Now().UnixMilli()
		if next <= last {
			next = last + 1
		}
		if lastLocalID.CompareAndSwap(last, next) {
			return LocalSessionPrefix + strconv.FormatInt(next, 10)
		}
	}
}
