package chunk

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSplitValidation(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{name: "zero size", size: 0, overlap: 0},
		{name: "negative size", size: -5, overlap: 0},
		{name: "overlap equals size", size: 100, overlap: 100},
		{name: "overlap exceeds size", size: 100, overlap: 150},
		{name: "negative overlap", size: 100, overlap: -1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Split("payload", tc.size, tc.overlap)
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("Split(%d, %d) error = %v, want ErrConfiguration", tc.size, tc.overlap, err)
			}
		})
	}
}

func TestSplitCoverage(t *testing.T) {
	cases := []struct {
		name       string
		payloadLen int
		size       int
		overlap    int
		wantChunks int
	}{
		{name: "exact multiple", payloadLen: 36000, size: 12000, overlap: 0, wantChunks: 3},
		{name: "forty thousand chars", payloadLen: 40000, size: 12000, overlap: 0, wantChunks: 4},
		{name: "smaller than one chunk", payloadLen: 500, size: 12000, overlap: 0, wantChunks: 1},
		{name: "with overlap", payloadLen: 1000, size: 400, overlap: 100, wantChunks: 3},
		{name: "single char", payloadLen: 1, size: 10, overlap: 3, wantChunks: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := strings.Repeat("x", tc.payloadLen)
			chunks, err := Split(payload, tc.size, tc.overlap)
			if err != nil {
				t.Fatalf("Split returned error: %v", err)
			}
			if len(chunks) != tc.wantChunks {
				t.Fatalf("got %d chunks, want %d", len(chunks), tc.wantChunks)
			}

			for i, c := range chunks {
				if c.Index != i {
					t.Errorf("chunk %d has index %d", i, c.Index)
				}
				if c.Length != len(c.Text) {
					t.Errorf("chunk %d length %d does not match text length %d", i, c.Length, len(c.Text))
				}
				if c.Length > tc.size {
					t.Errorf("chunk %d length %d exceeds size %d", i, c.Length, tc.size)
				}
				if got := payload[c.Offset : c.Offset+c.Length]; got != c.Text {
					t.Errorf("chunk %d text does not match payload slice at offset %d", i, c.Offset)
				}
			}

			// Full coverage with no gaps between consecutive chunks.
			if chunks[0].Offset != 0 {
				t.Errorf("first chunk starts at %d, want 0", chunks[0].Offset)
			}
			last := chunks[len(chunks)-1]
			if last.Offset+last.Length != tc.payloadLen {
				t.Errorf("last chunk ends at %d, want %d", last.Offset+last.Length, tc.payloadLen)
			}
			for i := 1; i < len(chunks); i++ {
				prevEnd := chunks[i-1].Offset + chunks[i-1].Length
				if chunks[i].Offset > prevEnd {
					t.Errorf("gap between chunk %d (ends %d) and chunk %d (starts %d)", i-1, prevEnd, i, chunks[i].Offset)
				}
			}
		})
	}
}

func TestSplitEmptyPayload(t *testing.T) {
	chunks, err := Split("", 100, 0)
	if err != nil {
		t.Fatalf("Split returned error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("got %d chunks for empty payload, want 0", len(chunks))
	}
}

func mustSplit(t *testing.T, payload string, size, overlap int) []Chunk {
	t.Helper()
	chunks, err := Split(payload, size, overlap)
	if err != nil {
		t.Fatalf("Split returned error: %v", err)
	}
	return chunks
}

func TestProcessOrder(t *testing.T) {
	chunks := mustSplit(t, "aaaabbbbcccc", 4, 0)

	t.Run("forward", func(t *testing.T) {
		var visited []int
		_, err := Process(context.Background(), chunks, []int(nil),
			func(_ context.Context, c Chunk) (int, error) { return c.Index, nil },
			func(acc []int, p Partial[int]) []int {
				visited = append(visited, p.Index)
				return append(acc, p.Value)
			}, Options[[]int]{})
		if err != nil {
			t.Fatalf("Process returned error: %v", err)
		}
		if want := []int{0, 1, 2}; !equalInts(visited, want) {
			t.Errorf("visited %v, want %v", visited, want)
		}
	})

	t.Run("reverse", func(t *testing.T) {
		var visited []int
		_, err := Process(context.Background(), chunks, []int(nil),
			func(_ context.Context, c Chunk) (int, error) { return c.Index, nil },
			func(acc []int, p Partial[int]) []int {
				visited = append(visited, p.Index)
				return append(acc, p.Value)
			}, Options[[]int]{Reverse: true})
		if err != nil {
			t.Fatalf("Process returned error: %v", err)
		}
		if want := []int{2, 1, 0}; !equalInts(visited, want) {
			t.Errorf("visited %v, want %v", visited, want)
		}
	})
}

func TestProcessEarlyExit(t *testing.T) {
	chunks := mustSplit(t, strings.Repeat("x", 40000), 12000, 0)
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}

	calls := 0
	merged, err := Process(context.Background(), chunks, map[string]string{},
		func(_ context.Context, c Chunk) (map[string]string, error) {
			calls++
			if c.Index == 2 {
				return map[string]string{"Load more": "ref42"}, nil
			}
			return nil, nil
		},
		MergeLabels,
		Options[map[string]string]{
			EarlyExit: func(m map[string]string) bool {
				_, ok := m["Load more"]
				return ok
			},
		})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if calls != 3 {
		t.Errorf("processed %d chunks, want 3 (chunk after the hit must be skipped)", calls)
	}
	if merged["Load more"] != "ref42" {
		t.Errorf("merged result = %v, want Load more -> ref42", merged)
	}
}

func TestProcessChunkFailureContinues(t *testing.T) {
	chunks := mustSplit(t, "aaaabbbbcccc", 4, 0)

	merged, err := Process(context.Background(), chunks, []string(nil),
		func(_ context.Context, c Chunk) (string, error) {
			if c.Index == 1 {
				return "", errors.New("completion failed")
			}
			return c.Text, nil
		},
		func(acc []string, p Partial[string]) []string { return append(acc, p.Value) },
		Options[[]string]{})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if want := []string{"aaaa", "cccc"}; !equalStrings(merged, want) {
		t.Errorf("merged = %v, want %v", merged, want)
	}
}

func TestProcessAllChunksFail(t *testing.T) {
	chunks := mustSplit(t, "aaaabbbb", 4, 0)

	merged, err := Process(context.Background(), chunks, map[string]string{},
		func(_ context.Context, _ Chunk) (map[string]string, error) {
			return nil, errors.New("completion failed")
		},
		MergeLabels,
		Options[map[string]string]{})
	if err != nil {
		t.Fatalf("total failure must yield an empty result, not an error: %v", err)
	}
	if len(merged) != 0 {
		t.Errorf("merged = %v, want empty", merged)
	}
}

func TestProcessCancellation(t *testing.T) {
	chunks := mustSplit(t, strings.Repeat("x", 100), 10, 0)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Process(ctx, chunks, 0,
		func(_ context.Context, _ Chunk) (int, error) {
			calls++
			cancel()
			return 0, nil
		},
		func(acc int, _ Partial[int]) int { return acc + 1 },
		Options[int]{Pacing: time.Minute})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Process error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("processed %d chunks after cancellation, want 1", calls)
	}
}

func TestMergeLabelsFirstWins(t *testing.T) {
	acc := map[string]string{}
	acc = MergeLabels(acc, Partial[map[string]string]{Index: 0, Value: map[string]string{"Sort by": "ref1"}})
	acc = MergeLabels(acc, Partial[map[string]string]{Index: 1, Value: map[string]string{"Sort by": "ref9", "Load more": "ref2"}})
	acc = MergeLabels(acc, Partial[map[string]string]{Index: 2, Value: map[string]string{"Load more": ""}})

	if acc["Sort by"] != "ref1" {
		t.Errorf("Sort by = %q, want ref1 (first chunk wins)", acc["Sort by"])
	}
	if acc["Load more"] != "ref2" {
		t.Errorf("Load more = %q, want ref2", acc["Load more"])
	}
}

func TestDeduperFirstSeenWins(t *testing.T) {
	d := NewDeduper(func(s string) string { return strings.ToLower(s) })
	d.Add([]string{"Great app", "bad app"})
	d.Add([]string{"GREAT APP", "ok app"})

	if want := []string{"Great app", "bad app", "ok app"}; !equalStrings(d.Records(), want) {
		t.Errorf("records = %v, want %v", d.Records(), want)
	}
}

func equalInts(got, want []int) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func equalStrings(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
