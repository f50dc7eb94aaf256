package paginate

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Funcs supplies the page interactions one pagination run needs. Discover
// returns the target control's ref within the given snapshot, or "" when the
// control is no longer present.
type Funcs struct {
	Discover func(ctx context.Context, snapshot string) (string, error)
	Click    func(ctx context.Context, ref string) (string, error)
	Snapshot func(ctx context.Context, iteration int) (string, error)
}

// State records the progress of one pagination run. Every iteration's click
// result and snapshot are retained for traceability even though only the
// final snapshot is consumed downstream.
type State struct {
	Iteration    int
	TargetRef    string
	ClickResults []string
	Snapshots    []string
}

// Controller drives a bounded "load more" loop over a growing page.
type Controller struct {
	Label         string
	MaxIterations int
	SettleDelay   time.Duration
}

// Run repeatedly locates and clicks the target control until it disappears
// from the page or MaxIterations clicks have been performed, whichever comes
// first. Hitting the iteration cap is a bounded-effort stop, not an error.
// Click and snapshot failures abort the loop and propagate: once interaction
// fails, later iterations' assumptions about page state no longer hold.
func (c Controller) Run(ctx context.Context, snapshot string, f Funcs) (State, error) {
	st := State{}
	current := snapshot

	for st.Iteration < c.MaxIterations {
		ref, err := f.Discover(ctx, current)
		if err != nil {
			return st, fmt.Errorf("discovering %q: %w", c.Label, err)
		}
		st.TargetRef = ref
		if ref == "" {
			log.Printf("pagination: %q no longer present after %d iterations", c.Label, st.Iteration)
			return st, nil
		}

		clicked, err := f.Click(ctx, ref)
		if err != nil {
			return st, fmt.Errorf("clicking %q (iteration %d): %w", c.Label, st.Iteration+1, err)
		}
		st.ClickResults = append(st.ClickResults, clicked)

		// Let the newly loaded content settle before snapshotting.
		if c.SettleDelay > 0 {
			timer := time.NewTimer(c.SettleDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return st, ctx.Err()
			case <-timer.C:
			}
		}

		current, err = f.Snapshot(ctx, st.Iteration+1)
		if err != nil {
			return st, fmt.Errorf("snapshot after clicking %q (iteration %d): %w", c.Label, st.Iteration+1, err)
		}
		st.Snapshots = append(st.Snapshots, current)
		st.Iteration++
	}

	log.Printf("pagination: reached iteration cap %d for %q", c.MaxIterations, c.Label)
	return st, nil
}
