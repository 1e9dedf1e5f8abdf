package crawler

import (
	"context"
	"time"
)

// EligibilityStore is the durable queue. It answers refetch eligibility and
// enforces uniqueness of canonical keys.
type EligibilityStore interface {
	// IsEligibleForFetch reports whether the URL was never fetched or its
	// refetch cooldown has elapsed.
	IsEligibleForFetch(ctx context.Context, canonicalURL string) (bool, error)
	// Insert creates a queue item. It returns an error wrapping ErrConflict
	// when the key is already queued inside its refetch window.
	Insert(ctx context.Context, req InsertRequest) (QueueItem, error)
	// MarkFetched records a completed fetch, starting the cooldown.
	MarkFetched(ctx context.Context, canonicalURL string, at time.Time) error
	Close()
}

// QueueReader looks up a single queue item by canonical URL.
type QueueReader interface {
	Get(ctx context.Context, canonicalURL string) (QueueItem, error)
}

// DomainValidator checks a host against allow/deny policy.
type DomainValidator interface {
	IsValid(host string) bool
}

// ScanIndex remembers keys already decided during this process lifetime.
type ScanIndex interface {
	Contains(key string) bool
	Mark(key string)
}

// Admitter decides admission for one discovered URL.
type Admitter interface {
	TryAdmit(ctx context.Context, raw string, origin *QueueItem) Outcome
}

// Queue provides enqueue/dequeue semantics for discovered links.
type Queue interface {
	Enqueue(ctx context.Context, item Discovery) error
	Dequeue(ctx context.Context) (Discovery, error)
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests used as compact store keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces queue item IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
