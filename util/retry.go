/*
 Copyright 2013-2014 Canonical Ltd.

 This program is free software: you can redistribute it and/or modify it
 under the terms of the GNU General Public License version 3, as published
 by the Free Software Foundation.

 This program is distributed in the hope that it will be useful, but
 WITHOUT ANY WARRANTY; without even the implied warranties of
 MERCHANTABILITY, SATISFACTORY QUALITY, or FITNESS FOR A PARTICULAR
 PURPOSE.  See the GNU General Public License for more details.

 You should have received a copy of the GNU General Public License along
 with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package util contains the retrier.
package util

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ubports/async-web-client/client"
	"github.com/ubports/async-web-client/logger"
)

// The timeouts used during backoff.
var timeouts []time.Duration
var trwlock sync.RWMutex

// Retrieve the list of timeouts used for exponential backoff.
func Timeouts() []time.Duration {
	trwlock.RLock()
	defer trwlock.RUnlock()
	return timeouts
}

// For testing: change the default timeouts with the provided ones,
// returning the defaults (the idea being you reset them on test
// teardown).
func SwapTimeouts(newTimeouts []time.Duration) (oldTimeouts []time.Duration) {
	trwlock.Lock()
	defer trwlock.Unlock()
	oldTimeouts, timeouts = timeouts, newTimeouts
	return
}

// Jitter returns a random duration in [-spread, spread].
func Jitter(spread time.Duration) time.Duration {
	if spread < 0 {
		panic("spread must be non-negative")
	}
	n := int64(spread)
	return time.Duration(rand.Int63n(2*n+1) - n)
}

// A Retrier calls a function until it stops failing with a retryable
// error. It backs off along Timeouts(), jittered.
type Retrier struct {
	// MaxAttempts of 0 means no limit.
	MaxAttempts uint32
	// Retryable defaults to client.IsRetryable.
	Retryable func(error) bool
	// Jitter defaults to up to a quarter of the timeout either way.
	Jitter func(time.Duration) time.Duration
	Log    logger.Logger
}

func (r *Retrier) retryable(err error) bool {
	if r.Retryable == nil {
		return client.IsRetryable(err)
	}
	return r.Retryable(err)
}

func (r *Retrier) jitter(d time.Duration) time.Duration {
	if r.Jitter == nil {
		return Jitter(d / 4)
	}
	return r.Jitter(d)
}

// Retry keeps on calling attempt until it succeeds, fails with an
// error that is not retryable, runs out of attempts or ctx is done. It
// returns the number of attempts made and the last error.
func (r *Retrier) Retry(ctx context.Context, attempt func(context.Context) error) (uint32, error) {
	var timeout time.Duration
	var attempts uint32 = 0 // unsigned so it can wrap safely ...
	timeouts := Timeouts()
	var numTimeouts uint32 = uint32(len(timeouts))
	for {
		err := attempt(ctx)
		attempts++
		if err == nil || !r.retryable(err) || attempts == r.MaxAttempts {
			return attempts, err
		}
		if attempts <= numTimeouts {
			timeout = timeouts[attempts-1]
		} else if numTimeouts > 0 {
			timeout = timeouts[numTimeouts-1]
		}
		timeout += r.jitter(timeout)
		if r.Log != nil {
			r.Log.Infof("attempt %d failed (%v); retrying in %v", attempts, err, timeout)
		}
		select {
		case <-ctx.Done():
			return attempts, err
		case <-time.After(timeout):
		}
	}
}

// Retry calls attempt with a default Retrier limited to maxAttempts.
func Retry(ctx context.Context, maxAttempts uint32, attempt func(context.Context) error) (uint32, error) {
	r := &Retrier{MaxAttempts: maxAttempts}
	return r.Retry(ctx, attempt)
}

func init() {
	ps := []int{1, 2, 5, 11, 19, 37, 67, 113, 191} // 3 pₙ₊₁ ≥ 5 pₙ
	timeouts := make([]time.Duration, len(ps))
	for i, n := range ps {
		timeouts[i] = time.Duration(n) * time.Second
	}
	SwapTimeouts(timeouts)
}
