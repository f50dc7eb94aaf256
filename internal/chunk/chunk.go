package chunk

import (
	"errors"
	"fmt"
)

// ErrConfiguration reports an invalid chunk size/overlap combination.
var ErrConfiguration = errors.New("invalid chunking configuration")

// Chunk is an immutable segment of a serialized payload. Indices ascend in
// payload order; adjacent chunks may overlap by a configured character count
// so a record straddling a boundary is not lost.
type Chunk struct {
	Index  int
	Offset int
	Length int
	Text   string
}

// Split slices payload greedily into chunks of at most size characters.
// overlap controls how far each chunk re-reads backward from the previous
// one and must be strictly less than size.
func Split(payload string, size, overlap int) ([]Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrConfiguration, overlap, size)
	}
	if payload == "" {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]Chunk, 0, (len(payload)+step-1)/step)
	for offset, index := 0, 0; offset < len(payload); offset, index = offset+step, index+1 {
		end := offset + size
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, Chunk{
			Index:  index,
			Offset: offset,
			Length: end - offset,
			Text:   payload[offset:end],
		})
		if end == len(payload) {
			break
		}
	}
	return chunks, nil
}
