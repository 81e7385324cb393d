// Package dedupe tracks recently seen broadcast frames to suppress
// re-processing duplicates produced by flood forwarding, per spec §4.4's
// P1/broadcast dedup rule.
//
// This generalizes the teacher's core/dedupe.PacketDeduplicator (a circular
// buffer of truncated content hashes) from whole-payload hashing to the
// (source address, sequence number) key that identifies a DATA frame,
// since spec §6's DATA header already carries a stable per-source sequence
// number and hashing the payload buys nothing extra.
package dedupe

import "github.com/kabili207/lorance/core/address"

// DefaultCapacity is the default number of (source, seq) pairs remembered.
const DefaultCapacity = 64

type key struct {
	src address.Address
	seq uint16
}

// Cache is a bounded circular-buffer cache of recently seen (source, seq)
// pairs. The zero value is not usable; use New.
type Cache struct {
	entries []key
	seen    map[key]struct{}
	next    int
}

// New creates a Cache with the default capacity.
func New() *Cache {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a Cache remembering up to capacity pairs.
func NewWithCapacity(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		entries: make([]key, capacity),
		seen:    make(map[key]struct{}, capacity),
	}
}

// HasSeen reports whether (src, seq) was already recorded. If not, it
// records the pair and returns false.
func (c *Cache) HasSeen(src address.Address, seq uint16) bool {
	k := key{src: src, seq: seq}
	if _, ok := c.seen[k]; ok {
		return true
	}

	evicted := c.entries[c.next]
	if evicted != (key{}) {
		delete(c.seen, evicted)
	}
	c.entries[c.next] = k
	c.seen[k] = struct{}{}
	c.next = (c.next + 1) % len(c.entries)
	return false
}

// Clear forgets every recorded pair.
func (c *Cache) Clear() {
	clear(c.entries)
	clear(c.seen)
	c.next = 0
}
