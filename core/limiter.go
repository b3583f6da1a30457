package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrTurnLimit is returned once a TurnLimiter has been exhausted.
var ErrTurnLimit = errors.New("turn limit reached")

// TurnLimiter enforces a maximum number of agent turns per group chat run.
type TurnLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewTurnLimiter creates a new limiter. If max == 0, unlimited turns are allowed.
func NewTurnLimiter(max int) *TurnLimiter {
	return &TurnLimiter{max: max}
}

// Increment records one turn and returns ErrTurnLimit when the limit is exceeded.
func (tl *TurnLimiter) Increment() error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.max > 0 && tl.count >= tl.max {
		return fmt.Errorf("%w: %d", ErrTurnLimit, tl.max)
	}
	tl.count++

	return nil
}

// Count returns the number of turns taken.
func (tl *TurnLimiter) Count() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return tl.count
}

// Exhausted reports whether no further turn is allowed.
func (tl *TurnLimiter) Exhausted() bool {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return tl.max > 0 && tl.count >= tl.max
}

// Remaining returns how many turns are left, or -1 when unlimited.
func (tl *TurnLimiter) Remaining() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.max == 0 {
		return -1
	}

	return tl.max - tl.count
}
