package chunk

// MergeLabels folds a discovery-mode partial into the accumulated
// label-to-ref mapping. The first chunk in processing order to produce a
// label wins; later values for an already-present label are discarded.
// Empty refs are never merged.
func MergeLabels(acc map[string]string, part Partial[map[string]string]) map[string]string {
	if acc == nil {
		acc = make(map[string]string, len(part.Value))
	}
	for label, ref := range part.Value {
		if ref == "" {
			continue
		}
		if _, ok := acc[label]; !ok {
			acc[label] = ref
		}
	}
	return acc
}

// Deduper accumulates extraction-mode records across partials, dropping any
// record whose identity key was already seen. First-seen order is preserved.
type Deduper[T any] struct {
	key  func(T) string
	seen map[string]struct{}
	out  []T
}

// NewDeduper creates a Deduper keyed by the given identity function.
func NewDeduper[T any](key func(T) string) *Deduper[T] {
	return &Deduper[T]{
		key:  key,
		seen: make(map[string]struct{}),
	}
}

// Add appends the records whose identity keys have not been seen yet.
func (d *Deduper[T]) Add(records []T) {
	for _, r := range records {
		k := d.key(r)
		if _, ok := d.seen[k]; ok {
			continue
		}
		d.seen[k] = struct{}{}
		d.out = append(d.out, r)
	}
}

// Records returns the accumulated records in first-seen order.
func (d *Deduper[T]) Records() []T {
	return d.out
}
