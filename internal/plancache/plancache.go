// Package plancache implements the bounded plan cache (spec §4.7): a
// fingerprint-keyed LRU from a canonical query hash to its prepared
// algebra plan, invalidated in full on any write that changed at least
// one triple.
package plancache

import (
	"encoding/binary"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"

	"github.com/relkv/rdfstore/internal/algebra"
)

// Fingerprint is the 128-bit xxh3 hash of a query's canonical form,
// reused from aleksaelezovic-trigo's Hash128 idiom
// (internal/encoding/encoder.go) — here repurposed as a cache key
// instead of a dictionary content hash, since spec keeps the dictionary
// on exact-byte lookups and a monotonic counter.
type Fingerprint [16]byte

// FingerprintText hashes raw query text (or any other canonical
// representation the caller has already normalized — e.g. with
// whitespace/comment stripping) into a Fingerprint.
func FingerprintText(canonical string) Fingerprint {
	h := xxh3.Hash128([]byte(canonical))
	var fp Fingerprint
	binary.BigEndian.PutUint64(fp[0:8], h.Hi)
	binary.BigEndian.PutUint64(fp[8:16], h.Lo)
	return fp
}

// Plan is a prepared algebra tree plus whatever the optimizer decided
// about it; cached verbatim and replanned only on a miss.
type Plan struct {
	Root algebra.Node
}

// Cache is the bounded LRU spec §4.7 describes. Many concurrent
// readers, single logical writer (Invalidate) — golang-lru/v2's Cache
// is already safe for concurrent use, so no extra locking is added
// here.
type Cache struct {
	lru *lru.Cache[Fingerprint, *Plan]
}

// New builds a Cache holding at most size entries.
func New(size int) (*Cache, error) {
	l, err := lru.New[Fingerprint, *Plan](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Get returns the cached plan for fp, if present.
func (c *Cache) Get(fp Fingerprint) (*Plan, bool) {
	return c.lru.Get(fp)
}

// Put stores plan under fp, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *Cache) Put(fp Fingerprint, plan *Plan) {
	c.lru.Add(fp, plan)
}

// Invalidate drops every cached plan. Spec §4.7: "invalidated in full
// on any write that changed ≥ 1 triple" — not a correctness requirement
// (a stale plan is still correct, just possibly suboptimal against new
// statistics), but the full-clear keeps the invariant simple to reason
// about, so the transaction coordinator calls this unconditionally
// rather than trying to identify which cached plans a given write could
// have affected.
func (c *Cache) Invalidate() {
	c.lru.Purge()
}

// Len reports the current entry count, for tests and diagnostics.
func (c *Cache) Len() int { return c.lru.Len() }
