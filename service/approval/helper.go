package approval

import (
	"context"
	"time"
)

// DecisionFunc maps a pending request onto a decision. Return approved true
// to approve, or false with a reason to reject.
type DecisionFunc func(request *Request) (approved bool, reason string)

// AutoDecider starts a goroutine that polls ListPending on the given
// interval and applies fn to every pending request. The returned stop
// function ends the loop; cancelling ctx does too. Intended for unattended
// setups and tests where no human moves records between partitions.
func AutoDecider(ctx context.Context, gate *Service, fn DecisionFunc, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				pending, err := gate.ListPending(ctx)
				if err != nil {
					continue
				}
				for _, request := range pending {
					approved, reason := fn(request)
					_ = gate.Decide(ctx, request.ID, approved, reason)
				}
			}
		}
	}()
	return func() { close(done) }
}

// AutoApprove approves every pending request.
func AutoApprove(ctx context.Context, gate *Service, interval time.Duration) func() {
	return AutoDecider(ctx, gate, func(*Request) (bool, string) { return true, "" }, interval)
}

// AutoReject rejects every pending request with the given reason.
func AutoReject(ctx context.Context, gate *Service, reason string, interval time.Duration) func() {
	return AutoDecider(ctx, gate, func(*Request) (bool, string) { return false, reason }, interval)
}
