package rpc

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "isolend/native/common"
)

// callerQuotas tracks batch and operation budgets per authenticated caller.
type callerQuotas struct {
	quota    nativecommon.Quota
	mu       sync.Mutex
	counters map[common.Address]nativecommon.QuotaNow
	clockNow func() time.Time
}

func newCallerQuotas(q nativecommon.Quota) *callerQuotas {
	return &callerQuotas{
		quota:    q,
		counters: make(map[common.Address]nativecommon.QuotaNow),
		clockNow: time.Now,
	}
}

// charge records one batch of ops for caller, failing without side effects
// when the budget is exhausted.
func (c *callerQuotas) charge(caller common.Address, ops int) error {
	if c == nil || !c.quota.Enabled() {
		return nil
	}
	window := c.quota.Window(c.clockNow())
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := nativecommon.CheckQuota(c.quota, window, c.counters[caller], 1, uint64(ops))
	if err != nil {
		return err
	}
	c.counters[caller] = next
	for addr, used := range c.counters {
		if used.WindowID < window {
			delete(c.counters, addr)
		}
	}
	return nil
}
