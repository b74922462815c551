// Package tradeerr defines the sentinel error kinds that cross the
// dispatcher / exchange façade boundary (spec §6, §7). Callers compare
// against these with errors.Is; collaborators wrap them with fmt.Errorf's
// %w verb to attach context.
package tradeerr

import "errors"

var (
	// ErrInsufficientBalance is returned when an operation would overdraw
	// an available or hold balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidOrder flags bad order parameters: unknown pair, or an
	// amount or price that is not positive once truncated or rounded to
	// the pair's precision.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrOrderNotFound is returned by cancel/query operations on an order
	// id the OrderManager does not recognize.
	ErrOrderNotFound = errors.New("order not found")

	// ErrRateLimited is surfaced by live collaborators after their retry
	// budget is exhausted against an exchange rate limit.
	ErrRateLimited = errors.New("rate limited")

	// ErrConnectivityError is surfaced by live collaborators after their
	// retry budget is exhausted against a connectivity failure.
	ErrConnectivityError = errors.New("connectivity error")

	// ErrPastSchedule is returned by SchedulerQueue.Schedule in
	// backtesting mode when the requested instant is before the virtual
	// clock's current time.
	ErrPastSchedule = errors.New("scheduled time is in the past")
)
