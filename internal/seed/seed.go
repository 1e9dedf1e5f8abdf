// Package seed loads the initial crawl frontier from a domain list.
//
// Each non-comment line is a bare domain (queued as http://<domain>/) or an
// absolute URL. Seeds go straight to the eligibility store at depth 0,
// skipping fetch conditions and domain policy, and existing items are left
// untouched.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
	"github.com/JakeFAU/crawl-admission/internal/policy/domain"
	"github.com/JakeFAU/crawl-admission/internal/storage"
)

// Result summarizes one seed run.
type Result struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Invalid  int `json:"invalid"`
}

// Loader inserts seed URLs into a store.
type Loader struct {
	store  crawler.EligibilityStore
	source storage.Source
	logger *zap.Logger
}

// New constructs a Loader.
func New(store crawler.EligibilityStore, source storage.Source, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{store: store, source: source, logger: logger}
}

// LoadFile reads uri through the loader's source and inserts every entry.
func (l *Loader) LoadFile(ctx context.Context, uri string) (Result, error) {
	if l.source == nil {
		return Result{}, errors.New("seed source not configured")
	}
	entries, err := domain.LoadList(ctx, l.source, uri)
	if err != nil {
		return Result{}, fmt.Errorf("load seeds: %w", err)
	}
	res, err := l.Insert(ctx, entries)
	if err != nil {
		return res, err
	}
	l.logger.Info("seed file loaded",
		zap.String("uri", uri),
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
		zap.Int("invalid", res.Invalid),
	)
	return res, nil
}

// Insert queues each entry unless it already exists. Malformed entries are
// counted and logged; store failures abort the run.
func (l *Loader) Insert(ctx context.Context, entries []string) (Result, error) {
	var res Result
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("seed insert canceled: %w", err)
		}
		c, err := crawler.Canonicalize(SeedURL(entry), nil)
		if err != nil {
			res.Invalid++
			l.logger.Warn("invalid seed entry", zap.String("entry", entry), zap.Error(err))
			continue
		}
		_, err = l.store.Insert(ctx, crawler.InsertRequest{
			Protocol: c.Protocol,
			Host:     c.Host,
			Port:     c.Port,
			Path:     c.Path,
		})
		switch {
		case err == nil:
			res.Inserted++
		case errors.Is(err, crawler.ErrConflict):
			res.Skipped++
		default:
			return res, fmt.Errorf("insert seed %s: %w", c.Key(), err)
		}
	}
	return res, nil
}

// SeedURL turns a bare domain into its root URL and leaves absolute URLs alone.
func SeedURL(entry string) string {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "://") {
		return entry
	}
	return "http://" + strings.TrimSuffix(entry, "/") + "/"
}
