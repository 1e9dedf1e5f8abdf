// Package domain decides whether a host may be crawled at all, based on
// configured allow and deny lists.
package domain

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/crawl-admission/internal/storage"
	"github.com/JakeFAU/crawl-admission/internal/storage/local"
)

// Config carries the list sources. Inline entries and file entries are merged.
type Config struct {
	Allow              []string
	Deny               []string
	AllowFile          string
	DenyFile           string
	RequireRegistrable bool
	// Source opens list files; nil reads from the local filesystem.
	Source storage.Source
}

// Validator is read-only after construction and safe for concurrent use.
type Validator struct {
	allow              *patternList
	deny               *patternList
	requireRegistrable bool
}

// New builds a Validator from inline entries only.
func New(allow, deny []string, requireRegistrable bool) *Validator {
	return &Validator{
		allow:              newPatternList(allow),
		deny:               newPatternList(deny),
		requireRegistrable: requireRegistrable,
	}
}

// FromConfig loads any list files and builds a Validator.
func FromConfig(ctx context.Context, cfg Config) (*Validator, error) {
	src := cfg.Source
	if src == nil {
		src = local.New(local.Config{})
	}
	allow := append([]string(nil), cfg.Allow...)
	deny := append([]string(nil), cfg.Deny...)
	if cfg.AllowFile != "" {
		entries, err := LoadList(ctx, src, cfg.AllowFile)
		if err != nil {
			return nil, fmt.Errorf("load allow list: %w", err)
		}
		allow = append(allow, entries...)
	}
	if cfg.DenyFile != "" {
		entries, err := LoadList(ctx, src, cfg.DenyFile)
		if err != nil {
			return nil, fmt.Errorf("load deny list: %w", err)
		}
		deny = append(deny, entries...)
	}
	return New(allow, deny, cfg.RequireRegistrable), nil
}

// IsValid reports whether host may be queued. The deny list wins over the
// allow list; an empty allow list allows everything not denied.
func (v *Validator) IsValid(host string) bool {
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return false
	}
	if v == nil {
		return true
	}
	if v.deny.matches(host) {
		return false
	}
	if v.allow != nil && !v.allow.matches(host) {
		return false
	}
	if v.requireRegistrable && !registrable(host) {
		return false
	}
	return true
}

// AllowSize reports how many allow entries were loaded.
func (v *Validator) AllowSize() int { return v.allow.size() }

// DenySize reports how many deny entries were loaded.
func (v *Validator) DenySize() int { return v.deny.size() }

func registrable(host string) bool {
	if net.ParseIP(strings.Trim(host, "[]")) != nil {
		return false
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(host); err != nil {
		return false
	}
	return true
}

// LoadList opens uri through src and parses it with ParseList.
func LoadList(ctx context.Context, src storage.Source, uri string) ([]string, error) {
	rc, err := src.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	entries, err := ParseList(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	return entries, nil
}

// ParseList reads one entry per line. Blank lines and lines starting with '#'
// are skipped, and trailing "# ..." comments are stripped.
func ParseList(r io.Reader) ([]string, error) {
	var entries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan list: %w", err)
	}
	return entries, nil
}
