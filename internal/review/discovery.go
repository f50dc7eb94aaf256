package review

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"reviewharvest/internal/chunk"
	"reviewharvest/internal/llm"
)

const discoveryInstructions = "You are an expert UI element discovery agent. Your job is to identify and return the refs of interactive elements based on their visible labels."

// DiscoverOptions controls one element-discovery pass.
type DiscoverOptions struct {
	ChunkSize int
	Overlap   int
	Pacing    time.Duration
	// Reverse scans the snapshot back to front, useful when the target
	// control sits near the end of a growing page.
	Reverse bool
}

func (o DiscoverOptions) withDefaults() DiscoverOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	return o
}

// DiscoverElements locates the refs of interactive elements whose visible
// labels match labels, scanning the serialized snapshot in bounded chunks.
// The first chunk in processing order to produce a label wins, and the scan
// stops early once every requested label has been found. A label absent from
// every chunk is absent from the result.
func DiscoverElements(ctx context.Context, completer llm.Completer, snapshot string, labels []string, opts DiscoverOptions) (map[string]string, error) {
	opts = opts.withDefaults()
	chunks, err := chunk.Split(snapshot, opts.ChunkSize, opts.Overlap)
	if err != nil {
		return nil, err
	}

	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = strconv.Quote(l)
	}
	labelList := strings.Join(quoted, ", ")

	fn := func(ctx context.Context, c chunk.Chunk) (map[string]string, error) {
		message := fmt.Sprintf(
			"Given this partial DOM/accessibility snapshot (as JSON):\n%s\n\n"+
				"For each element whose visible label matches any of: %s, find and return its ref in a JSON object. "+
				"Only include labels in the output if a matching element is found. If a label is not present, omit it from the JSON result. "+
				"Do not include nulls, empty strings, or explanations for missing labels.",
			c.Text, labelList,
		)
		reply, err := completer.Complete(ctx, discoveryInstructions, message)
		if err != nil {
			return nil, err
		}
		var found map[string]string
		if err := llm.DecodeJSON(reply, &found); err != nil {
			return nil, err
		}
		return found, nil
	}

	return chunk.Process(ctx, chunks, map[string]string{}, fn, chunk.MergeLabels, chunk.Options[map[string]string]{
		Pacing:  opts.Pacing,
		Reverse: opts.Reverse,
		EarlyExit: func(found map[string]string) bool {
			for _, l := range labels {
				if _, ok := found[l]; !ok {
					return false
				}
			}
			return true
		},
	})
}
