package conditions

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
)

// Names of the built-in conditions selectable from configuration.
const (
	NameMaxDepth       = "max_depth"
	NameAllowedSchemes = "allowed_schemes"
	NameSkipExtensions = "skip_extensions"
	NameSameSite       = "same_site"
)

// Config selects and parameterizes built-in conditions.
type Config struct {
	Enabled        []string
	AllowedSchemes []string
	SkipExtensions []string
}

// FromConfig builds a Filter from the enabled built-ins, in the listed order.
// Unknown names abort startup.
func FromConfig(cfg Config) (*Filter, error) {
	conds := make([]Condition, 0, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case NameMaxDepth:
			conds = append(conds, MaxDepth())
		case NameAllowedSchemes:
			conds = append(conds, AllowedSchemes(cfg.AllowedSchemes...))
		case NameSkipExtensions:
			conds = append(conds, SkipExtensions(cfg.SkipExtensions...))
		case NameSameSite:
			conds = append(conds, SameSite())
		default:
			return nil, fmt.Errorf("unknown fetch condition %q", name)
		}
	}
	return New(conds...)
}

// MaxDepth refuses candidates deeper than settings.MaxDepth; 0 means unlimited.
func MaxDepth() Condition {
	return Condition{
		Name: NameMaxDepth,
		Allow: func(c crawler.CandidateURL, s crawler.Settings) bool {
			return s.MaxDepth <= 0 || c.Depth <= s.MaxDepth
		},
	}
}

// AllowedSchemes refuses protocols outside the list (http and https by default).
func AllowedSchemes(schemes ...string) Condition {
	if len(schemes) == 0 {
		schemes = []string{"http", "https"}
	}
	allowed := make(map[string]struct{}, len(schemes))
	for _, s := range schemes {
		allowed[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return Condition{
		Name: NameAllowedSchemes,
		Allow: func(c crawler.CandidateURL, _ crawler.Settings) bool {
			_, ok := allowed[c.Protocol]
			return ok
		},
	}
}

// SkipExtensions refuses paths ending in one of the given file extensions.
func SkipExtensions(exts ...string) Condition {
	skip := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		skip[e] = struct{}{}
	}
	return Condition{
		Name: NameSkipExtensions,
		Allow: func(c crawler.CandidateURL, _ crawler.Settings) bool {
			p := c.Path
			if i := strings.IndexByte(p, '?'); i >= 0 {
				p = p[:i]
			}
			_, blocked := skip[strings.ToLower(path.Ext(p))]
			return !blocked
		},
	}
}

// SameSite keeps the crawl on the referrer's registrable domain. Seeds (no
// referrer) always pass.
func SameSite() Condition {
	return Condition{
		Name: NameSameSite,
		Allow: func(c crawler.CandidateURL, _ crawler.Settings) bool {
			if c.Referrer == nil {
				return true
			}
			return registrable(c.Host) == registrable(c.Referrer.Host)
		},
	}
}

func registrable(host string) string {
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return site
}
