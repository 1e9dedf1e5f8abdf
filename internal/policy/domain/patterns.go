package domain

import "strings"

// patternList stores exact hosts and suffix wildcards.
type patternList struct {
	exact    map[string]struct{}
	suffixes []string
}

func newPatternList(patterns []string) *patternList {
	list := &patternList{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSuffix(strings.TrimSpace(strings.ToLower(raw)), ".")
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			if suffix := strings.TrimPrefix(value, "*."); suffix != "" {
				list.addSuffix(suffix)
			}
		case strings.HasPrefix(value, "."):
			if suffix := strings.TrimPrefix(value, "."); suffix != "" {
				list.addSuffix(suffix)
			}
		default:
			list.exact[value] = struct{}{}
		}
	}
	if len(list.exact) == 0 && len(list.suffixes) == 0 {
		return nil
	}
	return list
}

func (l *patternList) addSuffix(suffix string) {
	for _, existing := range l.suffixes {
		if existing == suffix {
			return
		}
	}
	l.suffixes = append(l.suffixes, suffix)
}

// matches reports whether host equals an exact entry or sits under a suffix.
// A nil list matches nothing.
func (l *patternList) matches(host string) bool {
	if l == nil || host == "" {
		return false
	}
	if _, exact := l.exact[host]; exact {
		return true
	}
	for _, suffix := range l.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

func (l *patternList) size() int {
	if l == nil {
		return 0
	}
	return len(l.exact) + len(l.suffixes)
}
