package sequence

import "testing"

func TestCounterStartsAtZero(t *testing.T) {
	var c Counter
	if got := c.Next(); got != 0 {
		t.Errorf("expected first Next() to be 0, got %d", got)
	}
}

func TestCounterIncreasesMonotonically(t *testing.T) {
	var c Counter
	var prev int64 = -1
	for i := 0; i < 1000; i++ {
		got := c.Next()
		if got <= prev {
			t.Fatalf("sequence did not increase: prev=%d got=%d", prev, got)
		}
		prev = got
	}
}

func TestCounterConcurrentUseProducesUniqueValues(t *testing.T) {
	var c Counter
	const n = 200
	results := make(chan int64, n)
	for i := 0; i < n; i++ {
		go func() { results <- c.Next() }()
	}
	seen := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		v := <-results
		if seen[v] {
			t.Fatalf("sequence produced duplicate value %d", v)
		}
		seen[v] = true
	}
}
