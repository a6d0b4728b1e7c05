package bloom_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yanchengsi/spider/bloom"
)

func TestFilter(t *testing.T) {
	t.Parallel()

	t.Run("remembers submitted urls", func(t *testing.T) {
		t.Parallel()

		f := bloom.NewFilter(1000, 0.01)
		f.Add("https://example.com/a")

		assert.True(t, f.Test("https://example.com/a"))
		assert.False(t, f.Test("https://example.com/b"))
	})

	t.Run("counts distinct urls", func(t *testing.T) {
		t.Parallel()

		f := bloom.NewFilter(1000, 0.01)
		assert.Zero(t, f.EstimatedCount())

		for range 3 {
			f.Add("https://example.com/a")
		}
		f.Add("https://example.com/b")

		count := f.EstimatedCount()
		assert.True(t, count >= 1 && count <= 3, "expected about 2, got %d", count)
	})

	t.Run("TestAndAdd reports prior membership", func(t *testing.T) {
		t.Parallel()

		f := bloom.NewFilter(1000, 0.01)

		assert.False(t, f.TestAndAdd("https://example.com/a"))
		assert.True(t, f.TestAndAdd("https://example.com/a"))
	})
}

func TestFilter_FalsePositiveRate(t *testing.T) {
	t.Parallel()

	const n = 10000
	f := bloom.NewFilter(n, 0.01)
	for i := range n {
		f.Add(fmt.Sprintf("https://example.com/seen/%d", i))
	}

	hits := 0
	for i := range n {
		if f.Test(fmt.Sprintf("https://example.com/unseen/%d", i)) {
			hits++
		}
	}

	assert.Less(t, float64(hits)/n, 0.02)
}

func TestFilter_TestAndAddConcurrent(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	var fresh atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !f.TestAndAdd("https://example.com/shared") {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fresh.Load())
}
