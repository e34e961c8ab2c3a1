package scheduler

import (
	"testing"

	"github.com/kestrelops/kestrel/internal/domain"
)

func hostsN(n int) []*domain.Host {
	out := make([]*domain.Host, n)
	for i := range out {
		out[i] = &domain.Host{Name: string(rune('a' + i))}
	}
	return out
}

func TestSplitBatchesNoSerialIsOneBatch(t *testing.T) {
	batches := splitBatches(hostsN(5), nil)
	if len(batches) != 1 || len(batches[0]) != 5 {
		t.Fatalf("expected a single batch of 5, got %+v", batches)
	}
}

func TestSplitBatchesFixedCount(t *testing.T) {
	batches := splitBatches(hostsN(5), []domain.Serial{{Count: 2}})
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != 2 || len(batches[1]) != 2 || len(batches[2]) != 1 {
		t.Fatalf("unexpected batch sizes: %v %v %v", len(batches[0]), len(batches[1]), len(batches[2]))
	}
}

func TestSplitBatchesPercent(t *testing.T) {
	batches := splitBatches(hostsN(4), []domain.Serial{{Percent: 50}})
	if len(batches) != 2 || len(batches[0]) != 2 || len(batches[1]) != 2 {
		t.Fatalf("unexpected batches: %+v", batches)
	}
}

func TestSplitBatchesListRepeatsFinalValue(t *testing.T) {
	batches := splitBatches(hostsN(6), []domain.Serial{{Count: 1}, {Count: 2}})
	if len(batches) != 4 {
		t.Fatalf("expected 4 batches (1,2,2,1), got %d: %+v", len(batches), batches)
	}
	sizes := []int{len(batches[0]), len(batches[1]), len(batches[2]), len(batches[3])}
	want := []int{1, 2, 2, 1}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("batch %d: got %d want %d (sizes=%v)", i, sizes[i], want[i], sizes)
		}
	}
}

func TestFailPercentage(t *testing.T) {
	if got := failPercentage(1, 4); got != 25 {
		t.Fatalf("expected 25, got %v", got)
	}
	if got := failPercentage(0, 0); got != 0 {
		t.Fatalf("expected 0 for empty batch, got %v", got)
	}
}
