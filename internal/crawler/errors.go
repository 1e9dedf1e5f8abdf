package crawler

import "errors"

var (
	// ErrMalformedURL means the input could not be split into protocol, host and path.
	ErrMalformedURL = errors.New("malformed url")
	// ErrConflict is returned by stores when the canonical key already has a live queue item.
	ErrConflict = errors.New("queue item already exists")
	// ErrStoreUnavailable wraps failures of the eligibility lookup.
	ErrStoreUnavailable = errors.New("eligibility store unavailable")
	// ErrInsertFailed wraps non-conflict failures of the durable insert.
	ErrInsertFailed = errors.New("queue insert failed")
	// ErrNotQueued is returned by stores when no queue item exists for a URL.
	ErrNotQueued = errors.New("queue item not found")
)

// ErrQueueClosed is returned by Dequeue once a closed queue has drained.
var ErrQueueClosed = errors.New("queue closed")
