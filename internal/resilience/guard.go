package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCallTimeout is returned when a guarded call exceeds its timeout.
var ErrCallTimeout = errors.New("call timed out")

// ErrRejected marks a call that reached a healthy backend which declined the work.
// It fails the call without counting against the breaker.
var ErrRejected = errors.New("rejected by backend")

// FailureReason tags why a guarded call produced no value.
type FailureReason string

const (
	ReasonNone        FailureReason = ""
	ReasonTimeout     FailureReason = "timeout"
	ReasonCircuitOpen FailureReason = "circuit_open"
	ReasonRejected    FailureReason = "rejected"
	ReasonCancelled   FailureReason = "cancelled"
	ReasonTransport   FailureReason = "transport"
)

// Reason classifies an error returned by Call.
func Reason(err error) FailureReason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrBreakerOpen):
		return ReasonCircuitOpen
	case errors.Is(err, ErrCallTimeout):
		return ReasonTimeout
	case errors.Is(err, ErrRejected):
		return ReasonRejected
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	default:
		return ReasonTransport
	}
}

// Call runs fn behind the breaker with a bounded timeout.
//
// fn runs on its own goroutine; when the timeout or the parent context fires
// first, Call returns immediately and the in-flight call is abandoned.
// A cancelled parent context releases the breaker without a verdict.
func Call[T any](ctx context.Context, b *Breaker, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	permit, err := b.Allow()
	if err != nil {
		return zero, err
	}

	callCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("guarded call panicked: %v", r)}
			}
		}()
		v, err := fn(callCtx)
		done <- result{val: v, err: err}
	}()

	select {
	case res := <-done:
		switch {
		case res.err == nil:
			b.Success(permit)
			return res.val, nil
		case errors.Is(res.err, ErrRejected):
			b.Success(permit)
			return res.val, res.err
		case ctx.Err() != nil:
			b.Release(permit)
			return zero, ctx.Err()
		case callCtx.Err() != nil:
			b.Failure(permit)
			return zero, fmt.Errorf("%w after %s", ErrCallTimeout, timeout)
		default:
			b.Failure(permit)
			return zero, res.err
		}
	case <-callCtx.Done():
		if ctx.Err() != nil {
			b.Release(permit)
			return zero, ctx.Err()
		}
		b.Failure(permit)
		return zero, fmt.Errorf("%w after %s", ErrCallTimeout, timeout)
	}
}
