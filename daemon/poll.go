package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/burrowapp/burrow/progress"
)

const (
	defaultPollInterval         = 200 * time.Millisecond
	defaultMaxConsecutiveErrors = 10
)

// ErrDaemonUnreachable is returned by WaitForIndexer after too many failed
// polls in a row.
var ErrDaemonUnreachable = errors.New("daemon unreachable")

// ProgressSource is the part of Client that WaitForIndexer needs.
type ProgressSource interface {
	Progress(ctx context.Context) (progress.Progress, error)
}

type WaitOptions struct {
	// Interval between polls. Defaults to 200ms.
	Interval time.Duration

	// MaxConsecutiveErrors is how many failed polls in a row are tolerated.
	// Defaults to 10.
	MaxConsecutiveErrors int

	// OnChange is called when processed, total, errors or phase differ from
	// the previous poll. It may be nil.
	OnChange func(progress.Progress)
}

// WaitForIndexer polls until the daemon reports running=false and returns
// that final state. A single failed poll is tolerated; a run of
// MaxConsecutiveErrors failures returns an error wrapping ErrDaemonUnreachable.
func WaitForIndexer(ctx context.Context, src ProgressSource, opts WaitOptions) (progress.Progress, error) {
	if opts.Interval <= 0 {
		opts.Interval = defaultPollInterval
	}
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = defaultMaxConsecutiveErrors
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var (
		last     progress.Progress
		seen     bool
		failures int
		lastErr  error
	)

	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}

		p, err := src.Progress(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			failures++
			lastErr = err
			if failures >= opts.MaxConsecutiveErrors {
				return last, fmt.Errorf("%w after %d failed polls: %v", ErrDaemonUnreachable, failures, lastErr)
			}
			continue
		}
		failures = 0

		if !seen || changed(last, p) {
			if opts.OnChange != nil {
				opts.OnChange(p)
			}
		}
		last, seen = p, true

		if !p.Running {
			return p, nil
		}
	}
}

func changed(a, b progress.Progress) bool {
	return a.Processed != b.Processed || a.Total != b.Total || a.Errors != b.Errors || a.Phase != b.Phase
}
