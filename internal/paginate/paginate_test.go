package paginate

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// scriptedFuncs builds Funcs whose Discover pops refs off a scripted list.
func scriptedFuncs(refs []string, clicks *int) Funcs {
	i := 0
	return Funcs{
		Discover: func(_ context.Context, _ string) (string, error) {
			if i >= len(refs) {
				return "", nil
			}
			ref := refs[i]
			i++
			return ref, nil
		},
		Click: func(_ context.Context, ref string) (string, error) {
			*clicks++
			return "clicked " + ref, nil
		},
		Snapshot: func(_ context.Context, iteration int) (string, error) {
			return fmt.Sprintf("snapshot %d", iteration), nil
		},
	}
}

func TestRunTerminatesWhenControlDisappears(t *testing.T) {
	clicks := 0
	ctrl := Controller{Label: "Load more", MaxIterations: 10}

	st, err := ctrl.Run(context.Background(), "initial", scriptedFuncs([]string{"ref1", "ref2", "ref3", ""}, &clicks))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if clicks != 3 {
		t.Errorf("performed %d clicks, want 3", clicks)
	}
	if st.Iteration != 3 {
		t.Errorf("iteration = %d, want 3", st.Iteration)
	}
	if st.TargetRef != "" {
		t.Errorf("target ref = %q, want empty after termination", st.TargetRef)
	}
	if len(st.ClickResults) != 3 || len(st.Snapshots) != 3 {
		t.Errorf("accumulated %d click results and %d snapshots, want 3 each", len(st.ClickResults), len(st.Snapshots))
	}
}

func TestRunStopsAtIterationCap(t *testing.T) {
	clicks := 0
	f := Funcs{
		Discover: func(_ context.Context, _ string) (string, error) { return "ref", nil },
		Click: func(_ context.Context, _ string) (string, error) {
			clicks++
			return "clicked", nil
		},
		Snapshot: func(_ context.Context, _ int) (string, error) { return "snapshot", nil },
	}

	ctrl := Controller{Label: "Load more", MaxIterations: 5}
	st, err := ctrl.Run(context.Background(), "initial", f)
	if err != nil {
		t.Fatalf("reaching the cap must not be an error: %v", err)
	}
	if clicks != 5 {
		t.Errorf("performed %d clicks, want exactly 5", clicks)
	}
	if st.Iteration != 5 {
		t.Errorf("iteration = %d, want 5", st.Iteration)
	}
}

func TestRunPropagatesClickFailure(t *testing.T) {
	clickErr := errors.New("element detached")
	f := Funcs{
		Discover: func(_ context.Context, _ string) (string, error) { return "ref", nil },
		Click:    func(_ context.Context, _ string) (string, error) { return "", clickErr },
		Snapshot: func(_ context.Context, _ int) (string, error) { return "snapshot", nil },
	}

	ctrl := Controller{Label: "Load more", MaxIterations: 10}
	st, err := ctrl.Run(context.Background(), "initial", f)
	if !errors.Is(err, clickErr) {
		t.Fatalf("Run error = %v, want wrapped click error", err)
	}
	if st.Iteration != 0 {
		t.Errorf("iteration = %d, want 0", st.Iteration)
	}
}

func TestRunPropagatesSnapshotFailure(t *testing.T) {
	snapErr := errors.New("page crashed")
	f := Funcs{
		Discover: func(_ context.Context, _ string) (string, error) { return "ref", nil },
		Click:    func(_ context.Context, _ string) (string, error) { return "clicked", nil },
		Snapshot: func(_ context.Context, _ int) (string, error) { return "", snapErr },
	}

	ctrl := Controller{Label: "Load more", MaxIterations: 10}
	st, err := ctrl.Run(context.Background(), "initial", f)
	if !errors.Is(err, snapErr) {
		t.Fatalf("Run error = %v, want wrapped snapshot error", err)
	}
	// The click before the failed snapshot is still recorded.
	if len(st.ClickResults) != 1 {
		t.Errorf("accumulated %d click results, want 1", len(st.ClickResults))
	}
}

func TestRunPassesFreshSnapshotToDiscover(t *testing.T) {
	var seen []string
	refs := []string{"ref1", "ref2", ""}
	i := 0
	f := Funcs{
		Discover: func(_ context.Context, snapshot string) (string, error) {
			seen = append(seen, snapshot)
			ref := refs[i]
			i++
			return ref, nil
		},
		Click: func(_ context.Context, _ string) (string, error) { return "clicked", nil },
		Snapshot: func(_ context.Context, iteration int) (string, error) {
			return fmt.Sprintf("snapshot %d", iteration), nil
		},
	}

	ctrl := Controller{Label: "Load more", MaxIterations: 10}
	if _, err := ctrl.Run(context.Background(), "initial", f); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := []string{"initial", "snapshot 1", "snapshot 2"}
	if len(seen) != len(want) {
		t.Fatalf("discover saw %d snapshots, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("discover call %d saw %q, want %q", i, seen[i], want[i])
		}
	}
}
