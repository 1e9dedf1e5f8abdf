// Package admission decides whether a discovered URL may enter the fetch
// queue. The Engine composes canonicalization, fetch conditions, the local
// scan index, the eligibility store and the domain validator into one state
// machine that yields exactly one crawler.Outcome per attempt.
//
// The scan index and in-flight claims are a best-effort fast path. The
// store's uniqueness constraint is what guarantees a key is queued once.
package admission
