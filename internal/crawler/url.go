package crawler

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
	"ftp":   21,
}

// Canonicalize parses raw into a CandidateURL. Relative references resolve
// against origin's URL, and the candidate's depth is one more than origin's.
// Scheme and host are lowercased, default ports dropped from the key, the
// fragment removed, dot segments resolved and query parameters sorted.
func Canonicalize(raw string, origin *QueueItem) (CandidateURL, error) {
	candidate := CandidateURL{Raw: raw, Referrer: origin}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return candidate, fmt.Errorf("%w: empty input", ErrMalformedURL)
	}
	ref, err := url.Parse(trimmed)
	if err != nil {
		return candidate, fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}
	base := &url.URL{}
	if origin != nil {
		if parsed, perr := url.Parse(origin.URL()); perr == nil {
			base = parsed
		}
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme == "" && resolved.Host != "" {
		resolved.Scheme = "http"
	}
	if err := fillComponents(&candidate, resolved); err != nil {
		return candidate, err
	}
	if origin != nil {
		candidate.Depth = origin.Depth + 1
	}
	return candidate, nil
}

// CandidateFromParts builds a candidate from already-structured components.
// The explicit path wins over anything a parser would infer, and the result
// goes through the same normalization as Canonicalize.
func CandidateFromParts(protocol, host string, port int, path string, depth int, origin *QueueItem) (CandidateURL, error) {
	if depth < 0 {
		return CandidateURL{}, fmt.Errorf("%w: negative depth %d", ErrMalformedURL, depth)
	}
	hostPort := host
	if port > 0 {
		hostPort = net.JoinHostPort(host, strconv.Itoa(port))
	} else if strings.Contains(host, ":") {
		hostPort = "[" + host + "]"
	}
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	raw := fmt.Sprintf("%s://%s%s", protocol, hostPort, path)
	candidate, err := Canonicalize(raw, nil)
	if err != nil {
		return candidate, err
	}
	candidate.Depth = depth
	candidate.Referrer = origin
	return candidate, nil
}

// NormalizeURL returns the canonical key for rawURL.
func NormalizeURL(rawURL string) (string, error) {
	candidate, err := Canonicalize(rawURL, nil)
	if err != nil {
		return "", err
	}
	return candidate.Key(), nil
}

func fillComponents(c *CandidateURL, u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if scheme == "" || host == "" {
		return fmt.Errorf("%w: %q has no scheme or host", ErrMalformedURL, c.Raw)
	}
	port := defaultPorts[scheme]
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("%w: invalid port %q", ErrMalformedURL, p)
		}
		port = n
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		// Queries with undecodable pairs are kept verbatim; re-encoding would
		// drop those pairs and merge distinct resources.
		if values, err := url.ParseQuery(u.RawQuery); err != nil {
			path += "?" + u.RawQuery
		} else if q := values.Encode(); q != "" {
			path += "?" + q
		}
	}
	c.Protocol = scheme
	c.Host = host
	c.Port = port
	c.Path = path
	return nil
}

func canonicalKey(protocol, host string, port int, path string) string {
	var b strings.Builder
	b.WriteString(protocol)
	b.WriteString("://")
	if strings.Contains(host, ":") {
		b.WriteString("[" + host + "]")
	} else {
		b.WriteString(host)
	}
	if port != 0 && port != defaultPorts[protocol] {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(port))
	}
	if !strings.HasPrefix(path, "/") {
		b.WriteByte('/')
	}
	b.WriteString(path)
	return b.String()
}
