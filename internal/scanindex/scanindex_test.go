package scanindex_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-admission/internal/scanindex"
)

func TestExact_MarkAndContains(t *testing.T) {
	t.Parallel()

	idx := scanindex.NewExact()
	assert.False(t, idx.Contains("http://example.org/"))

	idx.Mark("http://example.org/")
	idx.Mark("http://example.org/")

	assert.True(t, idx.Contains("http://example.org/"))
	assert.False(t, idx.Contains("http://example.org/other"))
	assert.Equal(t, uint(1), idx.Len())
}

func TestBloom_MarkAndContains(t *testing.T) {
	t.Parallel()

	idx := scanindex.NewBloom(1000, 0.001)
	assert.False(t, idx.Contains("http://example.org/a"))

	idx.Mark("http://example.org/a")

	assert.True(t, idx.Contains("http://example.org/a"))
	assert.False(t, idx.Contains("http://example.org/b"))
}

func TestBloom_NoFalseNegatives(t *testing.T) {
	t.Parallel()

	idx := scanindex.NewBloom(500, 0.01)
	for i := 0; i < 500; i++ {
		idx.Mark(fmt.Sprintf("http://example.org/%d", i))
	}
	for i := 0; i < 500; i++ {
		require.True(t, idx.Contains(fmt.Sprintf("http://example.org/%d", i)))
	}
	count := idx.Len()
	assert.True(t, count >= 450 && count <= 550, "expected count near 500, got %d", count)
}

func TestIndexes_ConcurrentMark(t *testing.T) {
	t.Parallel()

	for _, idx := range []scanindex.Index{scanindex.NewExact(), scanindex.NewBloom(10000, 0.001)} {
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					key := fmt.Sprintf("http://example.org/%d/%d", w, i)
					idx.Mark(key)
					_ = idx.Contains(key)
				}
			}(w)
		}
		wg.Wait()
		for w := 0; w < 8; w++ {
			require.True(t, idx.Contains(fmt.Sprintf("http://example.org/%d/99", w)))
		}
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	idx, err := scanindex.New(scanindex.Config{})
	require.NoError(t, err)
	assert.IsType(t, &scanindex.Exact{}, idx)

	idx, err = scanindex.New(scanindex.Config{Kind: "Bloom", ExpectedItems: 100, FalsePositiveRate: 0.01})
	require.NoError(t, err)
	assert.IsType(t, &scanindex.Bloom{}, idx)

	_, err = scanindex.New(scanindex.Config{Kind: "bloom", FalsePositiveRate: 0.01})
	require.ErrorContains(t, err, "expected_items")

	_, err = scanindex.New(scanindex.Config{Kind: "bloom", ExpectedItems: 10, FalsePositiveRate: 1})
	require.ErrorContains(t, err, "false_positive_rate")

	_, err = scanindex.New(scanindex.Config{Kind: "lru"})
	require.ErrorContains(t, err, `unknown scan index kind "lru"`)
}
