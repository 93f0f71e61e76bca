package core

import "math/rand"

// Item is a single dataset record with a stable identifier.
type Item struct {
	ID       string
	Inputs   map[string]interface{}
	Expected map[string]interface{}
}

// Dataset is the accessor boundary: an ordered list of items supporting
// bounded sampling. Storage and retrieval mechanics live outside this core.
type Dataset interface {
	// Items returns all records in their stable order.
	Items() []Item
	// Sample returns at most n items. A nil rng yields the first n in order.
	Sample(n int, rng *rand.Rand) []Item
}

// Metric scores one program output against the expected output.
type Metric func(expected, actual map[string]interface{}) float64

// InMemoryDataset is the reference Dataset over a fixed slice.
type InMemoryDataset struct {
	items []Item
}

func NewInMemoryDataset(items []Item) *InMemoryDataset {
	return &InMemoryDataset{items: items}
}

func (d *InMemoryDataset) Items() []Item {
	out := make([]Item, len(d.items))
	copy(out, d.items)
	return out
}

func (d *InMemoryDataset) Sample(n int, rng *rand.Rand) []Item {
	if n <= 0 || n >= len(d.items) {
		return d.Items()
	}
	if rng == nil {
		out := make([]Item, n)
		copy(out, d.items[:n])
		return out
	}
	out := make([]Item, 0, n)
	for _, idx := range rng.Perm(len(d.items))[:n] {
		out = append(out, d.items[idx])
	}
	return out
}
