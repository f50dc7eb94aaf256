// Package orchestrator drives the end-to-end review-harvest workflow: open a
// tool session, navigate, snapshot, sort the reviews, page through them, then
// extract and analyze.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"reviewharvest/internal/artifacts"
	"reviewharvest/internal/config"
	"reviewharvest/internal/llm"
	"reviewharvest/internal/paginate"
	"reviewharvest/internal/review"
	"reviewharvest/internal/session"
)

// Capabilities names the tool operations the workflow invokes.
type Capabilities struct {
	Navigate string
	Click    string
	Snapshot string
}

// Config carries the workflow knobs; FromConfig derives it from file config.
type Config struct {
	SortLabel       string
	SortOptionLabel string
	LoadMoreLabel   string

	NavigateTimeout time.Duration
	ClickTimeout    time.Duration
	SnapshotTimeout time.Duration

	SettleDelay       time.Duration
	MaxLoadMoreClicks int

	Capabilities Capabilities

	Discover review.DiscoverOptions
	Extract  review.ExtractOptions
	Analyze  review.AnalyzeOptions
}

// FromConfig maps the file-level configuration onto workflow settings.
func FromConfig(cfg config.Config) Config {
	pacing := cfg.Workflow.GetChunkPacing()
	return Config{
		SortLabel:       cfg.Workflow.SortLabel,
		SortOptionLabel: cfg.Workflow.SortOptionLabel,
		LoadMoreLabel:   cfg.Workflow.LoadMoreLabel,

		NavigateTimeout: cfg.Tool.GetNavigateTimeout(),
		ClickTimeout:    cfg.Tool.GetClickTimeout(),
		SnapshotTimeout: cfg.Tool.GetSnapshotTimeout(),

		SettleDelay:       cfg.Workflow.GetSettleDelay(),
		MaxLoadMoreClicks: cfg.Workflow.MaxLoadMoreClicks,

		Capabilities: Capabilities{
			Navigate: cfg.Tool.Capabilities.Navigate,
			Click:    cfg.Tool.Capabilities.Click,
			Snapshot: cfg.Tool.Capabilities.Snapshot,
		},

		Discover: review.DiscoverOptions{
			ChunkSize: cfg.Workflow.ChunkSize,
			Overlap:   cfg.Workflow.DiscoveryOverlap,
			Pacing:    pacing,
		},
		Extract: review.ExtractOptions{
			ChunkSize: cfg.Workflow.ChunkSize,
			Overlap:   cfg.Workflow.ExtractionOverlap,
			Pacing:    pacing,
		},
		Analyze: review.AnalyzeOptions{
			ChunkSize: cfg.Workflow.AnalysisChunkSize,
			Overlap:   cfg.Workflow.AnalysisOverlap,
			Pacing:    pacing,
		},
	}
}

// Result aggregates everything one run produced.
type Result struct {
	SessionID            string            `json:"session_id"`
	URL                  string            `json:"url"`
	NavigationResult     string            `json:"navigation_result"`
	SnapshotResult       string            `json:"snapshot_result"`
	ElementDiscovery     map[string]string `json:"element_discovery"`
	ClickResult          string            `json:"click_result,omitempty"`
	PostClickSnapshot    string            `json:"post_click_snapshot,omitempty"`
	LoadMoreClickResults []string          `json:"load_more_click_results"`
	LoadMoreSnapshots    []string          `json:"load_more_snapshots"`
	ExtractedReviews     []review.Review   `json:"extracted_reviews"`
	ReviewAnalysis       []map[string]any  `json:"review_analysis"`
}

// Orchestrator owns one workflow run over one tool session.
type Orchestrator struct {
	cfg       Config
	session   *session.Manager
	invoker   *session.Invoker
	completer llm.Completer
	store     *artifacts.Store
}

// New builds an Orchestrator. store may be nil to disable artifacts.
func New(cfg Config, sess *session.Manager, completer llm.Completer, store *artifacts.Store) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		session:   sess,
		invoker:   session.NewInvoker(sess),
		completer: completer,
		store:     store,
	}
}

// Run executes the full workflow against url. The session is closed on every
// exit path.
func (o *Orchestrator) Run(ctx context.Context, url string) (Result, error) {
	result := Result{SessionID: o.session.ID(), URL: url}

	if err := o.session.Open(ctx); err != nil {
		return result, fmt.Errorf("opening session: %w", err)
	}
	defer o.session.Close()

	caps, err := o.session.DiscoverCapabilities(ctx)
	if err != nil {
		return result, fmt.Errorf("discovering capabilities: %w", err)
	}
	log.Printf("session %s: capabilities %v", o.session.ID(), caps)

	for _, name := range []string{o.cfg.Capabilities.Navigate, o.cfg.Capabilities.Click, o.cfg.Capabilities.Snapshot} {
		if !o.session.Has(name) {
			return result, fmt.Errorf("%w: %s", session.ErrCapabilityUnavailable, name)
		}
	}

	// Navigation is best-effort: heavy review pages often keep loading long
	// after the content we need is present.
	nav, err := o.invoker.Invoke(ctx, o.cfg.Capabilities.Navigate, map[string]any{"url": url}, o.cfg.NavigateTimeout, session.BestEffort)
	if err != nil {
		return result, err
	}
	if nav.TimedOut {
		result.NavigationResult = fmt.Sprintf("Navigation to %s timed out; continuing.", url)
	} else {
		result.NavigationResult = fmt.Sprintf("Navigation to %s complete.", url)
	}
	log.Print(result.NavigationResult)

	snapshot, err := o.snapshot(ctx)
	if err != nil {
		return result, err
	}
	result.SnapshotResult = snapshot
	o.store.SaveRaw(artifacts.SnapshotFile, snapshot)

	found, err := review.DiscoverElements(ctx, o.completer, snapshot, []string{o.cfg.SortLabel, o.cfg.LoadMoreLabel}, o.cfg.Discover)
	if err != nil {
		return result, fmt.Errorf("discovering controls: %w", err)
	}
	result.ElementDiscovery = found
	o.store.Save(artifacts.ElementDiscoveryFile, found)

	if sortRef, ok := found[o.cfg.SortLabel]; ok {
		clickResult, err := o.click(ctx, o.cfg.SortLabel, sortRef)
		if err != nil {
			return result, err
		}
		result.ClickResult = clickResult

		snapshot, err = o.snapshot(ctx)
		if err != nil {
			return result, err
		}
		result.PostClickSnapshot = snapshot
		o.store.SaveRaw(artifacts.PostClickSnapshotFile, snapshot)

		optionFound, err := review.DiscoverElements(ctx, o.completer, snapshot, []string{o.cfg.SortOptionLabel}, o.cfg.Discover)
		if err != nil {
			return result, fmt.Errorf("discovering sort option: %w", err)
		}
		if optionRef, ok := optionFound[o.cfg.SortOptionLabel]; ok {
			if _, err := o.click(ctx, o.cfg.SortOptionLabel, optionRef); err != nil {
				return result, err
			}
			snapshot, err = o.snapshot(ctx)
			if err != nil {
				return result, err
			}
		} else {
			log.Printf("sort option %q not found; keeping default order", o.cfg.SortOptionLabel)
		}
	} else {
		log.Printf("control %q not found; skipping sort", o.cfg.SortLabel)
	}

	reverseDiscover := o.cfg.Discover
	reverseDiscover.Reverse = true

	controller := paginate.Controller{
		Label:         o.cfg.LoadMoreLabel,
		MaxIterations: o.cfg.MaxLoadMoreClicks,
		SettleDelay:   o.cfg.SettleDelay,
	}
	state, err := controller.Run(ctx, snapshot, paginate.Funcs{
		Discover: func(ctx context.Context, snap string) (string, error) {
			found, err := review.DiscoverElements(ctx, o.completer, snap, []string{o.cfg.LoadMoreLabel}, reverseDiscover)
			if err != nil {
				return "", err
			}
			return found[o.cfg.LoadMoreLabel], nil
		},
		Click: func(ctx context.Context, ref string) (string, error) {
			return o.click(ctx, o.cfg.LoadMoreLabel, ref)
		},
		Snapshot: func(ctx context.Context, iteration int) (string, error) {
			snap, err := o.snapshot(ctx)
			if err != nil {
				return "", err
			}
			o.store.SaveRaw(artifacts.LoadMoreSnapshotFile(iteration), snap)
			return snap, nil
		},
	})
	if err != nil {
		return result, fmt.Errorf("paginating %q: %w", o.cfg.LoadMoreLabel, err)
	}
	result.LoadMoreClickResults = state.ClickResults
	result.LoadMoreSnapshots = state.Snapshots
	if n := len(state.Snapshots); n > 0 {
		snapshot = state.Snapshots[n-1]
	}
	o.store.SaveRaw(artifacts.LastSnapshotFile, snapshot)

	reviews, err := review.ExtractReviews(ctx, o.completer, snapshot, o.cfg.Extract)
	if err != nil {
		return result, fmt.Errorf("extracting reviews: %w", err)
	}
	result.ExtractedReviews = reviews
	o.store.Save(artifacts.ReviewExtractionFile, reviews)
	log.Printf("extracted %d reviews", len(reviews))

	analysis, err := review.AnalyzeReviews(ctx, o.completer, reviews, o.cfg.Analyze)
	if err != nil {
		return result, fmt.Errorf("analyzing reviews: %w", err)
	}
	result.ReviewAnalysis = analysis
	o.store.Save(artifacts.ReviewAnalysisFile, analysis)

	return result, nil
}

// snapshot captures the page through the tool. Snapshots feed every later
// step, so they are required-class.
func (o *Orchestrator) snapshot(ctx context.Context) (string, error) {
	res, err := o.invoker.Invoke(ctx, o.cfg.Capabilities.Snapshot, map[string]any{}, o.cfg.SnapshotTimeout, session.Required)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// click presses the element behind ref and reports the outcome.
func (o *Orchestrator) click(ctx context.Context, label, ref string) (string, error) {
	args := map[string]any{"element": label, "ref": ref}
	res, err := o.invoker.Invoke(ctx, o.cfg.Capabilities.Click, args, o.cfg.ClickTimeout, session.Required)
	if err != nil {
		return "", fmt.Errorf("clicking %q: %w", label, err)
	}
	return fmt.Sprintf("Clicked on '%s' (ref=%s). Tool result: %s", label, ref, res.Text), nil
}
