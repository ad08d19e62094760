package parallel

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelizeCoversEveryIndexOnce(t *testing.T) {
	for _, items := range []int{0, 1, 7, 1000} {
		t.Run(fmt.Sprintf("items=%d", items), func(t *testing.T) {
			hits := make([]int32, items)
			Parallelize(items, func(start, end int) {
				for i := start; i < end; i++ {
					atomic.AddInt32(&hits[i], 1)
				}
			})
			for i, h := range hits {
				assert.Equal(t, int32(1), h, "index %d", i)
			}
		})
	}
}

func TestParallelizeWithThresholdRunsSequentiallyBelowThreshold(t *testing.T) {
	var calls int32
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
	})
	assert.Equal(t, int32(1), calls)
}

func TestParallelizeWorkersCapsRanges(t *testing.T) {
	var calls int32
	ParallelizeWorkers(100, 3, func(start, end int) {
		atomic.AddInt32(&calls, 1)
	})
	assert.Equal(t, int32(3), calls)
}

func TestForEachReturnsLowestIndexError(t *testing.T) {
	err := ForEach(20, 4, func(i int) error {
		if i == 5 || i == 15 {
			return fmt.Errorf("failed at %d", i)
		}
		return nil
	})
	assert.EqualError(t, err, "failed at 5")

	assert.NoError(t, ForEach(20, 4, func(int) error { return nil }))
	assert.NoError(t, ForEach(0, 4, func(int) error { return fmt.Errorf("never") }))
}
