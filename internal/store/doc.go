// Package store defines interfaces for persistence dependencies that sit
// beside the eligibility store (e.g. per-host admission statistics).
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store
