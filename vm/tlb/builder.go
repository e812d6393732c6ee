package tlb

import (
	"container/list"
	"fmt"
)

// A Builder can build TLB caches.
type Builder struct {
	capacity int
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		capacity: 32,
	}
}

// WithCapacity sets the number of entries the cache can hold. The capacity
// must be at least 1.
func (b Builder) WithCapacity(capacity int) Builder {
	b.capacity = capacity
	return b
}

// Build creates a Cache with the given name.
func (b Builder) Build(name string) *Cache {
	if b.capacity < 1 {
		panic(fmt.Sprintf("TLB capacity must be at least 1, got %d",
			b.capacity))
	}

	return &Cache{
		name:     name,
		capacity: b.capacity,
		entries:  make(map[entryKey]*list.Element),
		recency:  list.New(),
	}
}
