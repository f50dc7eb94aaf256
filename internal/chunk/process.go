package chunk

import (
	"context"
	"log"
	"time"
)

// Partial is the output of processing one chunk, tagged with the index of
// the chunk that produced it.
type Partial[P any] struct {
	Index int
	Value P
}

// Options controls one chunk-processing pass.
type Options[M any] struct {
	// Pacing is slept between chunk invocations (never after the last one)
	// to respect rate limits of the downstream completion service. It is a
	// throttle, not a retry mechanism.
	Pacing time.Duration
	// Reverse processes chunks last to first, useful when the target is
	// likely near the end of the payload.
	Reverse bool
	// EarlyExit, when non-nil, is checked after each merge; returning true
	// stops the pass without touching the remaining chunks.
	EarlyExit func(M) bool
}

// Process invokes fn once per chunk and folds each partial result into
// merged via mergeFn. A single chunk's failure is logged and skipped so the
// pass can continue; a pass where every chunk fails returns the unchanged
// seed with a nil error, since partial data beats a hard failure here.
func Process[P, M any](ctx context.Context, chunks []Chunk, merged M, fn func(context.Context, Chunk) (P, error), mergeFn func(M, Partial[P]) M, opts Options[M]) (M, error) {
	order := make([]int, len(chunks))
	for i := range order {
		order[i] = i
	}
	if opts.Reverse {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}

	for pos, i := range order {
		c := chunks[i]
		value, err := fn(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return merged, ctx.Err()
			}
			log.Printf("chunk %d of %d failed, continuing: %v", c.Index+1, len(chunks), err)
		} else {
			merged = mergeFn(merged, Partial[P]{Index: c.Index, Value: value})
			if opts.EarlyExit != nil && opts.EarlyExit(merged) {
				return merged, nil
			}
		}

		if pos < len(order)-1 && opts.Pacing > 0 {
			if err := sleepContext(ctx, opts.Pacing); err != nil {
				return merged, err
			}
		}
	}
	return merged, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
