// Package tlb provides a bounded, fully-associative cache of recent
// successful translations with LRU eviction and the selective invalidation
// operations an SMMUv3 invalidation command stream requires.
package tlb

import (
	"container/list"

	"github.com/sarchlab/smmu/vm"
)

// An Entry memoizes one successful translation. The key is the combination of
// the stream, the PASID, and the page-aligned I/O virtual address.
type Entry struct {
	StreamID vm.StreamID
	PASID    vm.PASID
	IOVA     uint64

	PAddr uint64
	Perms vm.PagePermissions
	Valid bool
}

type entryKey struct {
	streamID vm.StreamID
	pasid    vm.PASID
	iova     uint64
}

// A Cache is a bounded associative memo of recent translations. It is a hint
// over the owning AddressSpace, never a second source of truth: the caller
// populates it from translation results and scrubs it on invalidation events.
//
// The cache performs no internal locking.
type Cache struct {
	name     string
	capacity int

	entries map[entryKey]*list.Element
	recency *list.List // front is most recently used

	hitCount  uint64
	missCount uint64
}

type cacheLine struct {
	key   entryKey
	entry Entry
}

// Name returns the name of the cache.
func (c *Cache) Name() string {
	return c.name
}

// Insert adds an entry to the cache, overwriting the value and refreshing the
// recency of an already present key. When a new key would exceed the
// capacity, the least recently touched entry is evicted first. Insert never
// fails.
func (c *Cache) Insert(entry Entry) {
	entry.IOVA = vm.AlignToPage(entry.IOVA)
	key := entryKey{entry.StreamID, entry.PASID, entry.IOVA}

	if elem, found := c.entries[key]; found {
		elem.Value.(*cacheLine).entry = entry
		c.recency.MoveToFront(elem)
		return
	}

	if c.recency.Len() >= c.capacity {
		c.evictLRU()
	}

	elem := c.recency.PushFront(&cacheLine{key: key, entry: entry})
	c.entries[key] = elem
}

// Lookup finds the entry for the page containing iova. A hit refreshes the
// entry's recency. Hit and miss counters accumulate until Reset.
func (c *Cache) Lookup(
	streamID vm.StreamID,
	pasid vm.PASID,
	iova uint64,
) (Entry, bool) {
	key := entryKey{streamID, pasid, vm.AlignToPage(iova)}

	elem, found := c.entries[key]
	if !found {
		c.missCount++
		return Entry{}, false
	}

	c.recency.MoveToFront(elem)
	c.hitCount++

	return elem.Value.(*cacheLine).entry, true
}

// Invalidate removes the entry that matches the stream, PASID, and page
// exactly, if present.
func (c *Cache) Invalidate(streamID vm.StreamID, pasid vm.PASID, iova uint64) {
	key := entryKey{streamID, pasid, vm.AlignToPage(iova)}

	if elem, found := c.entries[key]; found {
		c.removeElement(elem)
	}
}

// InvalidateByStream removes every entry of the stream, irrespective of PASID
// and address.
func (c *Cache) InvalidateByStream(streamID vm.StreamID) {
	c.invalidateMatching(func(k entryKey) bool {
		return k.streamID == streamID
	})
}

// InvalidateByPASID removes every entry that matches both the stream and the
// PASID.
func (c *Cache) InvalidateByPASID(streamID vm.StreamID, pasid vm.PASID) {
	c.invalidateMatching(func(k entryKey) bool {
		return k.streamID == streamID && k.pasid == pasid
	})
}

// Clear removes all entries. The lookup counters keep accumulating.
func (c *Cache) Clear() {
	c.entries = make(map[entryKey]*list.Element)
	c.recency = list.New()
}

// Reset removes all entries and zeroes the hit and miss counters.
func (c *Cache) Reset() {
	c.Clear()
	c.hitCount = 0
	c.missCount = 0
}

// Size returns the number of entries currently cached.
func (c *Cache) Size() int {
	return c.recency.Len()
}

// Capacity returns the configured entry capacity.
func (c *Cache) Capacity() int {
	return c.capacity
}

// HitCount returns the cumulative number of lookup hits.
func (c *Cache) HitCount() uint64 {
	return c.hitCount
}

// MissCount returns the cumulative number of lookup misses.
func (c *Cache) MissCount() uint64 {
	return c.missCount
}

// TotalLookups returns the cumulative number of lookups.
func (c *Cache) TotalLookups() uint64 {
	return c.hitCount + c.missCount
}

// HitRate returns the fraction of lookups that hit, or 0.0 before the first
// lookup.
func (c *Cache) HitRate() float64 {
	total := c.TotalLookups()
	if total == 0 {
		return 0.0
	}

	return float64(c.hitCount) / float64(total)
}

func (c *Cache) evictLRU() {
	elem := c.recency.Back()
	if elem == nil {
		return
	}

	c.removeElement(elem)
}

func (c *Cache) removeElement(elem *list.Element) {
	line := elem.Value.(*cacheLine)
	c.recency.Remove(elem)
	delete(c.entries, line.key)
}

func (c *Cache) invalidateMatching(match func(entryKey) bool) {
	var next *list.Element
	for elem := c.recency.Front(); elem != nil; elem = next {
		next = elem.Next()

		if match(elem.Value.(*cacheLine).key) {
			c.removeElement(elem)
		}
	}
}
