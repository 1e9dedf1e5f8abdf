package crawler

import (
	"time"
)

// CandidateURL is a discovered URL after canonicalization. It is immutable once
// built and lives only for the duration of one admission attempt.
type CandidateURL struct {
	// Raw is the input as supplied by the discoverer (may be relative).
	Raw      string
	Protocol string
	Host     string
	// Port is always populated; default ports are implied by Protocol.
	Port  int
	Path  string
	Depth int
	// Referrer is the queue item whose page linked to this candidate, if any.
	Referrer *QueueItem
}

// Key returns the canonical identity used for dedup in memory and in stores.
func (c CandidateURL) Key() string {
	return canonicalKey(c.Protocol, c.Host, c.Port, c.Path)
}

// ReferrerURL returns the referrer's canonical URL or "" without a referrer.
func (c CandidateURL) ReferrerURL() string {
	if c.Referrer == nil {
		return ""
	}
	return c.Referrer.URL()
}

// QueueItem is the durable record created on successful admission.
type QueueItem struct {
	ID            string     `json:"id"`
	Protocol      string     `json:"protocol"`
	Host          string     `json:"host"`
	Port          int        `json:"port"`
	Path          string     `json:"path"`
	Depth         int        `json:"depth"`
	Referrer      string     `json:"referrer,omitempty"`
	FirstQueuedAt time.Time  `json:"first_queued_at"`
	LastQueuedAt  time.Time  `json:"last_queued_at"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
}

// URL returns the canonical URL of the queued resource.
func (q QueueItem) URL() string {
	return canonicalKey(q.Protocol, q.Host, q.Port, q.Path)
}

// InsertRequest carries the fields a store needs to create a QueueItem.
type InsertRequest struct {
	Protocol string
	Host     string
	Port     int
	Path     string
	Depth    int
	Referrer string
}

// URL returns the canonical key the store must enforce uniqueness on.
func (r InsertRequest) URL() string {
	return canonicalKey(r.Protocol, r.Host, r.Port, r.Path)
}

// Discovery is one link found while processing a page, queued for admission.
type Discovery struct {
	URL    string
	Origin *QueueItem
}

// Settings is the read-only crawl context handed to fetch conditions.
type Settings struct {
	RefetchCooldown time.Duration
	// MaxDepth of 0 disables the depth limit.
	MaxDepth    int
	Concurrency int
}
