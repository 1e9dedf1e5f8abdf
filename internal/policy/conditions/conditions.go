// Package conditions holds the ordered fetch-condition filter consulted before
// any I/O is spent on a candidate.
package conditions

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
)

// Predicate returns true to allow the candidate.
type Predicate func(candidate crawler.CandidateURL, settings crawler.Settings) bool

// Condition is a named inclusion rule.
type Condition struct {
	Name  string
	Allow Predicate
}

// Filter evaluates conditions in registration order. It is read-only after
// construction and safe for concurrent use.
type Filter struct {
	conditions []Condition
}

// New validates and freezes the provided conditions. A nil predicate, an empty
// name or a duplicate name is a configuration error.
func New(conds ...Condition) (*Filter, error) {
	seen := make(map[string]struct{}, len(conds))
	for i, c := range conds {
		if c.Name == "" {
			return nil, fmt.Errorf("condition %d: name is required", i)
		}
		if c.Allow == nil {
			return nil, fmt.Errorf("condition %q: predicate is nil", c.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("condition %q registered twice", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return &Filter{conditions: append([]Condition(nil), conds...)}, nil
}

// AdmitsSynchronously reports whether every condition allows the candidate.
func (f *Filter) AdmitsSynchronously(candidate crawler.CandidateURL, settings crawler.Settings) bool {
	return f.Rejecting(candidate, settings) == ""
}

// Rejecting returns the name of the first condition refusing the candidate, or
// "" when all allow. Evaluation stops at the first refusal.
func (f *Filter) Rejecting(candidate crawler.CandidateURL, settings crawler.Settings) string {
	if f == nil {
		return ""
	}
	for _, c := range f.conditions {
		if !c.Allow(candidate, settings) {
			return c.Name
		}
	}
	return ""
}

// Names lists the registered conditions in evaluation order.
func (f *Filter) Names() []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.conditions))
	for _, c := range f.conditions {
		out = append(out, c.Name)
	}
	return out
}

// ErrRejected is wrapped in denial details so callers can tell which rule fired.
var ErrRejected = errors.New("fetch condition rejected candidate")

// RejectionError names the refusing condition.
func RejectionError(name string) error {
	return fmt.Errorf("%w: %s", ErrRejected, name)
}
