package review

import (
	"context"
	"fmt"
	"time"

	"reviewharvest/internal/chunk"
	"reviewharvest/internal/llm"
)

const extractionInstructions = "You are an expert at extracting structured review data from a DOM or accessibility tree. " +
	"Given a fragment of a page snapshot, extract all visible reviews and return them as JSON. " +
	"Each review should include: reviewer name, rating, date, review text, and any developer reply (if present). " +
	"Do not summarize or omit any reviews."

// ExtractOptions controls one review-extraction pass.
type ExtractOptions struct {
	ChunkSize int
	// Overlap re-reads this many characters across chunk boundaries so a
	// review straddling one is not lost; the overlap's duplicates are
	// removed during the merge.
	Overlap int
	Pacing  time.Duration
}

func (o ExtractOptions) withDefaults() ExtractOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	return o
}

type reviewsEnvelope struct {
	Reviews []Review `json:"reviews"`
}

// ExtractReviews pulls every visible review out of the serialized snapshot.
// Records appearing in more than one chunk are deduplicated by identity
// (normalized review text, or a content hash when the text is empty); the
// first occurrence in processing order survives.
func ExtractReviews(ctx context.Context, completer llm.Completer, snapshot string, opts ExtractOptions) ([]Review, error) {
	opts = opts.withDefaults()
	chunks, err := chunk.Split(snapshot, opts.ChunkSize, opts.Overlap)
	if err != nil {
		return nil, err
	}

	fn := func(ctx context.Context, c chunk.Chunk) ([]Review, error) {
		message := fmt.Sprintf(
			"Extract all reviews from this partial page snapshot:\n%s\n\n"+
				"Return a JSON object with a single key 'reviews', whose value is a list of objects with: "+
				"'reviewer', 'rating', 'date', 'text', and 'developer_reply' (if present). "+
				"Output only the JSON object, nothing else.",
			c.Text,
		)
		reply, err := completer.Complete(ctx, extractionInstructions, message)
		if err != nil {
			return nil, err
		}
		return decodeReviews(reply)
	}

	merge := func(d *chunk.Deduper[Review], part chunk.Partial[[]Review]) *chunk.Deduper[Review] {
		d.Add(part.Value)
		return d
	}

	dedup, err := chunk.Process(ctx, chunks, chunk.NewDeduper(identityKey), fn, merge, chunk.Options[*chunk.Deduper[Review]]{
		Pacing: opts.Pacing,
	})
	if err != nil {
		return nil, err
	}
	return dedup.Records(), nil
}

// decodeReviews accepts both the requested {"reviews": [...]} envelope and a
// bare array, since models alternate between the two.
func decodeReviews(reply string) ([]Review, error) {
	var env reviewsEnvelope
	if err := llm.DecodeJSON(reply, &env); err == nil && env.Reviews != nil {
		return env.Reviews, nil
	}
	var list []Review
	if err := llm.DecodeJSON(reply, &list); err != nil {
		return nil, err
	}
	return list, nil
}
