package eventlog

import (
	"context"
	"time"
)

// Changed returns a channel that is closed by the next Append. Capture it
// before reading so an append between the read and the wait is not missed.
func (l *Log) Changed() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notifyCh
}

// WaitForAppend blocks until either a new append occurs, timeout elapses or
// ctx is done. It returns true if woken by an append.
func (l *Log) WaitForAppend(ctx context.Context, timeout time.Duration) bool {
	return Wait(ctx, l.Changed(), timeout)
}

// Wait blocks on a channel obtained from Changed. A non-positive timeout
// waits until the append or ctx cancellation.
func Wait(ctx context.Context, ch <-chan struct{}, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-ch:
			return true
		case <-ctx.Done():
			return false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}
