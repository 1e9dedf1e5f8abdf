// Package scanindex remembers canonical keys already decided during this
// process so repeated discoveries short-circuit before touching the store.
package scanindex

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Kinds accepted by New.
const (
	KindExact = "exact"
	KindBloom = "bloom"
)

// Config sizes the index.
type Config struct {
	Kind              string
	ExpectedItems     uint
	FalsePositiveRate float64
}

// Index is the subset of behavior the admission engine needs.
type Index interface {
	Contains(key string) bool
	Mark(key string)
	Len() uint
}

// New builds the configured index. An empty kind selects the exact index.
func New(cfg Config) (Index, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindExact:
		return NewExact(), nil
	case KindBloom:
		if cfg.ExpectedItems == 0 {
			return nil, errors.New("bloom scan index: expected_items must be positive")
		}
		if cfg.FalsePositiveRate <= 0 || cfg.FalsePositiveRate >= 1 {
			return nil, fmt.Errorf("bloom scan index: false_positive_rate must be in (0,1), got %v", cfg.FalsePositiveRate)
		}
		return NewBloom(cfg.ExpectedItems, cfg.FalsePositiveRate), nil
	default:
		return nil, fmt.Errorf("unknown scan index kind %q", cfg.Kind)
	}
}

// Exact is a set of keys. Membership is authoritative for the process lifetime.
type Exact struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewExact returns an empty exact index.
func NewExact() *Exact {
	return &Exact{keys: make(map[string]struct{})}
}

// Contains reports whether key was marked.
func (e *Exact) Contains(key string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.keys[key]
	return ok
}

// Mark records key. Marking twice is a no-op.
func (e *Exact) Mark(key string) {
	e.mu.Lock()
	e.keys[key] = struct{}{}
	e.mu.Unlock()
}

// Len returns the number of marked keys.
func (e *Exact) Len() uint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint(len(e.keys))
}

// Bloom trades exactness for bounded memory. A false positive makes an unseen
// key look marked, never the reverse.
type Bloom struct {
	mu sync.RWMutex
	f  *bloom.BloomFilter
}

// NewBloom sizes the filter for n expected keys at the given false positive rate.
func NewBloom(n uint, fpRate float64) *Bloom {
	return &Bloom{f: bloom.NewWithEstimates(n, fpRate)}
}

// Contains returns true if key might have been marked.
func (b *Bloom) Contains(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.f.TestString(key)
}

// Mark adds key to the filter.
func (b *Bloom) Mark(key string) {
	b.mu.Lock()
	b.f.AddString(key)
	b.mu.Unlock()
}

// Len returns the approximate number of marked keys.
func (b *Bloom) Len() uint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return uint(b.f.ApproximatedSize())
}
