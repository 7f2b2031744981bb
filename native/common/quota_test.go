package common

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestCheckQuotaBatchLimit(t *testing.T) {
	q := Quota{MaxBatchesPerWindow: 10}
	prev := QuotaNow{WindowID: 1}

	next, err := CheckQuota(q, 1, prev, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Batches != 10 {
		t.Fatalf("unexpected batch count: %d", next.Batches)
	}

	denied, err := CheckQuota(q, 1, next, 1, 0)
	if !errors.Is(err, ErrQuotaBatchesExceeded) {
		t.Fatalf("expected ErrQuotaBatchesExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error after window rollover: %v", err)
	}
	if rollover.WindowID != 2 || rollover.Batches != 1 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
}

func TestCheckQuotaOps(t *testing.T) {
	q := Quota{MaxOpsPerWindow: 1000}
	prev := QuotaNow{WindowID: 5}

	next, err := CheckQuota(q, 5, prev, 0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Ops != 1000 {
		t.Fatalf("unexpected ops: %d", next.Ops)
	}

	denied, err := CheckQuota(q, 5, next, 0, 1)
	if !errors.Is(err, ErrQuotaOpsExceeded) {
		t.Fatalf("expected ErrQuotaOpsExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 6, next, 0, 500)
	if err != nil {
		t.Fatalf("unexpected error after window rollover: %v", err)
	}
	if rollover.Ops != 500 {
		t.Fatalf("unexpected ops after rollover: %d", rollover.Ops)
	}
}

func TestCheckQuotaOverflow(t *testing.T) {
	prev := QuotaNow{WindowID: 1, Ops: math.MaxUint64}
	if _, err := CheckQuota(Quota{}, 1, prev, 0, 1); !errors.Is(err, ErrQuotaCounterOverflow) {
		t.Fatalf("expected ErrQuotaCounterOverflow, got %v", err)
	}
}

func TestQuotaWindow(t *testing.T) {
	q := Quota{WindowSeconds: 30}
	if got := q.Window(time.Unix(95, 0)); got != 3 {
		t.Fatalf("unexpected window %d", got)
	}
	if got := (Quota{}).Window(time.Unix(125, 0)); got != 2 {
		t.Fatalf("default window should be one minute, got %d", got)
	}
	if (Quota{}).Enabled() {
		t.Fatalf("zero quota should be disabled")
	}
}
