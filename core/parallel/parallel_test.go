package parallel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestForEach(t *testing.T) {
	const n = 50
	var hits [n]int32
	var inFlight, maxInFlight int32

	err := ForEach(context.Background(), n, 3, func(_ context.Context, i int) error {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if cur <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, cur) {
				break
			}
		}
		atomic.AddInt32(&hits[i], 1)
		atomic.AddInt32(&inFlight, -1)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach() error = %v", err)
	}
	for i, h := range hits {
		if h != 1 {
			t.Errorf("index %d visited %d times", i, h)
		}
	}
	if maxInFlight > 3 {
		t.Errorf("observed %d concurrent calls, limit was 3", maxInFlight)
	}
}

func TestForEach_Error(t *testing.T) {
	boom := errors.New("fold failed")
	err := ForEach(context.Background(), 10, 2, func(_ context.Context, i int) error {
		if i == 4 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("ForEach() error = %v, want %v", err, boom)
	}
}

func TestParallelize(t *testing.T) {
	tests := []struct {
		name      string
		items     int
		threshold int
	}{
		{name: "sequential below threshold", items: 10, threshold: 100},
		{name: "parallel above threshold", items: 1000, threshold: 10},
		{name: "empty", items: 0, threshold: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			seen := make([]bool, tt.items)
			ParallelizeWithThreshold(tt.items, tt.threshold, 4, func(start, end int) {
				mu.Lock()
				defer mu.Unlock()
				for i := start; i < end; i++ {
					if seen[i] {
						t.Errorf("index %d processed twice", i)
					}
					seen[i] = true
				}
			})
			for i, ok := range seen {
				if !ok {
					t.Errorf("index %d not processed", i)
				}
			}
		})
	}
}

func TestWorkers(t *testing.T) {
	if Workers(0) < 1 {
		t.Error("Workers(0) should fall back to GOMAXPROCS")
	}
	if Workers(7) != 7 {
		t.Error("Workers(7) should be 7")
	}
}
