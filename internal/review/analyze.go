package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"reviewharvest/internal/chunk"
	"reviewharvest/internal/llm"
)

// DefaultAnalysisTasks are the analyses run when the caller supplies none.
var DefaultAnalysisTasks = []string{
	"Summarize the overall sentiment (positive/negative/neutral) and why.",
	"List the most common themes or topics mentioned.",
	"Highlight the most frequent complaints and praises.",
	"Identify any patterns in ratings (e.g., clusters of 1-star/5-star reviews).",
	"Extract 3 representative reviews with their text, author, and rating.",
}

// AnalyzeOptions controls one analysis pass.
type AnalyzeOptions struct {
	// ChunkSize and Overlap are counted in reviews, not characters.
	ChunkSize int
	Overlap   int
	Pacing    time.Duration
	Tasks     []string
}

func (o AnalyzeOptions) withDefaults() AnalyzeOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultAnalysisChunkSize
	}
	if len(o.Tasks) == 0 {
		o.Tasks = DefaultAnalysisTasks
	}
	return o
}

// AnalyzeReviews runs the analysis tasks over the review list in overlapping
// count-based windows, returning one analysis object per window. A window
// whose completion fails or returns unparsable output is logged and skipped;
// the pass continues with the remaining windows.
func AnalyzeReviews(ctx context.Context, completer llm.Completer, reviews []Review, opts AnalyzeOptions) ([]map[string]any, error) {
	opts = opts.withDefaults()
	if opts.Overlap < 0 || opts.Overlap >= opts.ChunkSize {
		return nil, fmt.Errorf("%w: analysis overlap %d must be in [0, %d)", chunk.ErrConfiguration, opts.Overlap, opts.ChunkSize)
	}
	if len(reviews) == 0 {
		return nil, nil
	}

	instructions := "You are an expert product review analyst. Given a JSON array of user reviews (each with text, author, rating, etc.), " +
		"perform the following analyses:\n- " + strings.Join(opts.Tasks, "\n- ") +
		"\nOutput your results as a JSON object with clear keys for each task."

	step := opts.ChunkSize - opts.Overlap
	var results []map[string]any
	for start := 0; start < len(reviews); start += step {
		end := start + opts.ChunkSize
		if end > len(reviews) {
			end = len(reviews)
		}
		window := reviews[start:end]

		payload, err := json.Marshal(window)
		if err != nil {
			return results, fmt.Errorf("serializing reviews %d-%d: %w", start, end, err)
		}
		message := "Analyze the following reviews (in JSON array format):\n" + string(payload) +
			"\n\nReturn your analysis as a JSON object."

		reply, err := completer.Complete(ctx, instructions, message)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			log.Printf("analysis of reviews %d-%d failed, continuing: %v", start, end, err)
		} else {
			var analysis map[string]any
			if err := llm.DecodeJSON(reply, &analysis); err != nil {
				log.Printf("analysis of reviews %d-%d returned unparsable output, continuing: %v", start, end, err)
			} else {
				results = append(results, analysis)
			}
		}

		if start+step < len(reviews) && opts.Pacing > 0 {
			timer := time.NewTimer(opts.Pacing)
			select {
			case <-ctx.Done():
				timer.Stop()
				return results, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return results, nil
}
