package common

import (
	"errors"
	"math"
	"time"
)

var (
	ErrQuotaBatchesExceeded = errors.New("quota batches exceeded")
	ErrQuotaOpsExceeded     = errors.New("quota operations exceeded")
	ErrQuotaCounterOverflow = errors.New("quota counter overflow")
)

// QuotaNow captures the current usage counters for a caller.
type QuotaNow struct {
	Batches  uint32
	Ops      uint64
	WindowID uint64
}

// Quota defines the per-caller limits enforced over a fixed window. Zero
// limits are unlimited.
type Quota struct {
	MaxBatchesPerWindow uint32
	MaxOpsPerWindow     uint64
	WindowSeconds       uint32
}

// Enabled reports whether any limit is set.
func (q Quota) Enabled() bool {
	return q.MaxBatchesPerWindow > 0 || q.MaxOpsPerWindow > 0
}

// Window returns the window id containing now. A zero WindowSeconds uses one
// minute.
func (q Quota) Window(now time.Time) uint64 {
	secs := q.WindowSeconds
	if secs == 0 {
		secs = 60
	}
	unix := now.Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix) / uint64(secs)
}

// CheckQuota verifies whether the additional batches and operations fit within
// the configured quota. The returned QuotaNow reflects the updated counters
// when the quota is not exceeded.
func CheckQuota(q Quota, nowWindow uint64, prev QuotaNow, addBatches uint32, addOps uint64) (QuotaNow, error) {
	next := prev
	if prev.WindowID != nowWindow {
		next = QuotaNow{WindowID: nowWindow}
	}

	if addBatches > 0 {
		if next.Batches > math.MaxUint32-addBatches {
			return prev, ErrQuotaCounterOverflow
		}
		next.Batches += addBatches
	}
	if q.MaxBatchesPerWindow > 0 && next.Batches > q.MaxBatchesPerWindow {
		return prev, ErrQuotaBatchesExceeded
	}

	if addOps > 0 {
		if next.Ops > math.MaxUint64-addOps {
			return prev, ErrQuotaCounterOverflow
		}
		next.Ops += addOps
	}
	if q.MaxOpsPerWindow > 0 && next.Ops > q.MaxOpsPerWindow {
		return prev, ErrQuotaOpsExceeded
	}

	return next, nil
}
