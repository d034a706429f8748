// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package replication

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// maxRetryDelay caps the wait between fetch attempts.
const maxRetryDelay = 30 * time.Second

// backoff is the retry policy for table fetches: the delay starts at base
// and doubles after every failed attempt, up to maxRetryDelay.
type backoff struct {
	attempts int
	base     time.Duration
	logger   *slog.Logger
}

func (b backoff) delay(attempt int) time.Duration {
	d := b.base
	for i := 1; i < attempt && d < maxRetryDelay; i++ {
		d *= 2
	}
	return min(d, maxRetryDelay)
}

// permanent reports whether retrying cannot help: ctx has ended, or the
// error says so through a Temporary method (remote.StatusError does).
func permanent(ctx context.Context, err error) bool {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return true
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return !temp.Temporary()
	}
	return false
}

// retry runs op until it succeeds, fails permanently or uses up every
// attempt. The last error is returned.
func retry[T any](ctx context.Context, b backoff, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if b.attempts <= 0 {
		return zero, ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				b.logger.Debug("fetch succeeded after retry", "attempt", attempt)
			}
			return v, nil
		}
		lastErr = err
		if permanent(ctx, err) || attempt == b.attempts {
			break
		}

		wait := b.delay(attempt)
		b.logger.Debug("fetch failed, retrying", "attempt", attempt, "max_attempts", b.attempts, "wait", wait, "err", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}
