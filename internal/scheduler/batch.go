// Package scheduler implements the strategy scheduler (C5): serial
// batching, the linear/free/host_pinned strategies, throttle buckets, and
// the max_fail_percentage/any_errors_fatal abort conditions (§4.5).
package scheduler

import (
	"math"

	"github.com/kestrelops/kestrel/internal/domain"
)

// splitBatches partitions hosts per the play's `serial` spec (§4.5). An
// empty spec means "all hosts, one batch". The final element of a list
// spec repeats for any hosts left over once the list is exhausted.
func splitBatches(hosts []*domain.Host, serial []domain.Serial) [][]*domain.Host {
	if len(serial) == 0 {
		return [][]*domain.Host{hosts}
	}

	var batches [][]*domain.Host
	total := len(hosts)
	pos := 0
	for pos < total {
		idx := len(batches)
		if idx >= len(serial) {
			idx = len(serial) - 1
		}
		spec := serial[idx]
		size := batchSize(spec, total)
		if size <= 0 {
			size = 1
		}
		end := pos + size
		if end > total {
			end = total
		}
		batches = append(batches, hosts[pos:end])
		pos = end
	}
	return batches
}

func batchSize(s domain.Serial, total int) int {
	if s.Percent > 0 {
		return int(math.Ceil(s.Percent / 100 * float64(total)))
	}
	if s.Count > 0 {
		return s.Count
	}
	return total
}

// failPercentage computes the failure ratio used by max_fail_percentage
// (§4.5): failed_hosts / batch_size * 100.
func failPercentage(failed, batchSize int) float64 {
	if batchSize == 0 {
		return 0
	}
	return float64(failed) / float64(batchSize) * 100
}
