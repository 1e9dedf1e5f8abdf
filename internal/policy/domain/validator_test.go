package domain

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-admission/internal/storage/local"
)

func TestPatternList(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		l := newPatternList([]string{"Example.org."})
		require.NotNil(t, l)
		require.True(t, l.matches("example.org"))
		require.False(t, l.matches("sub.example.org"))
	})

	t.Run("wildcard suffix", func(t *testing.T) {
		l := newPatternList([]string{"*.ru", ".gov.au", "*.ru"})
		require.Equal(t, 2, l.size())
		cases := []struct {
			host  string
			match bool
		}{
			{"example.ru", true},
			{"sub.domain.ru", true},
			{"ru", true},
			{"abs.gov.au", true},
			{"notgov.au", false},
			{"example.com", false},
		}
		for _, tc := range cases {
			require.Equal(t, tc.match, l.matches(tc.host), tc.host)
		}
	})

	t.Run("empty input yields nil", func(t *testing.T) {
		require.Nil(t, newPatternList([]string{"", "  ", "*."}))
		var l *patternList
		require.False(t, l.matches("anything"))
	})
}

func TestValidatorIsValid(t *testing.T) {
	t.Parallel()

	t.Run("no lists allows everything", func(t *testing.T) {
		t.Parallel()
		v := New(nil, nil, false)
		require.True(t, v.IsValid("example.org"))
		require.False(t, v.IsValid(""))
	})

	t.Run("deny wins over allow", func(t *testing.T) {
		t.Parallel()
		v := New([]string{"*.example.org"}, []string{"private.example.org"}, false)
		require.True(t, v.IsValid("www.example.org"))
		require.False(t, v.IsValid("private.example.org"))
		require.False(t, v.IsValid("other.org"))
	})

	t.Run("host is normalized", func(t *testing.T) {
		t.Parallel()
		v := New(nil, []string{"bad.example"}, false)
		require.False(t, v.IsValid(" BAD.example. "))
	})

	t.Run("registrable required", func(t *testing.T) {
		t.Parallel()
		v := New(nil, nil, true)
		require.True(t, v.IsValid("abs.gov.au"))
		require.False(t, v.IsValid("gov.au"))
		require.False(t, v.IsValid("10.0.0.1"))
		require.False(t, v.IsValid("::1"))
	})

	t.Run("nil validator allows non-empty hosts", func(t *testing.T) {
		t.Parallel()
		var v *Validator
		require.True(t, v.IsValid("example.org"))
	})
}

func TestFromConfigLoadsFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	allowPath := filepath.Join(dir, "allow.txt")
	denyPath := filepath.Join(dir, "deny.txt")
	require.NoError(t, os.WriteFile(allowPath, []byte("# stats agencies\n*.gov.au\n\nabs.gov.au # duplicate of wildcard\n"), 0o600))
	require.NoError(t, os.WriteFile(denyPath, []byte("archive.gov.au\n"), 0o600))

	v, err := FromConfig(context.Background(), Config{
		Allow:     []string{"example.org"},
		AllowFile: allowPath,
		DenyFile:  denyPath,
	})
	require.NoError(t, err)
	require.Equal(t, 3, v.AllowSize())
	require.Equal(t, 1, v.DenySize())

	require.True(t, v.IsValid("abs.gov.au"))
	require.True(t, v.IsValid("example.org"))
	require.False(t, v.IsValid("archive.gov.au"))
	require.False(t, v.IsValid("example.com"))
}

func TestFromConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := FromConfig(context.Background(), Config{DenyFile: filepath.Join(t.TempDir(), "missing.txt")})
	require.ErrorContains(t, err, "load deny list")
}

func TestLoadList(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("a.org\n  # comment\n b.org  \n\nc.org#tail\n"), 0o600))

	entries, err := LoadList(context.Background(), local.New(local.Config{}), path)
	require.NoError(t, err)
	require.Equal(t, []string{"a.org", "b.org", "c.org"}, entries)
}

func TestParseList(t *testing.T) {
	t.Parallel()

	entries, err := ParseList(strings.NewReader("# header\n*.gov.au\n\t.example.org # tail\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"*.gov.au", ".example.org"}, entries)
}
