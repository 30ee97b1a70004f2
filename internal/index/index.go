// Package index implements the triple index layer (spec §4.2): three
// redundant key-only indices over id-triples (SPO, POS, OSP), the
// pattern-to-prefix selection table, and atomic insert/delete.
package index

import (
	"encoding/binary"

	"github.com/relkv/rdfstore/internal/dict"
	"github.com/relkv/rdfstore/internal/kv"
)

// Which is one of the three index orderings.
type Which int

const (
	SPO Which = iota
	POS
	OSP
)

func (w Which) CF() kv.CF {
	switch w {
	case SPO:
		return kv.CFSPO
	case POS:
		return kv.CFPOS
	default:
		return kv.CFOSP
	}
}

// Triple is an id-triple: three TermIds in (subject, predicate, object)
// order, independent of which index stores it.
type Triple struct {
	S, P, O dict.TermId
}

func putID(dst []byte, id dict.TermId) { binary.BigEndian.PutUint64(dst, uint64(id)) }

func getID(src []byte) dict.TermId { return dict.TermId(binary.BigEndian.Uint64(src)) }

// Key builds the 24-byte key for t as stored under index w.
func Key(w Which, t Triple) []byte {
	key := make([]byte, 24)
	switch w {
	case SPO:
		putID(key[0:8], t.S)
		putID(key[8:16], t.P)
		putID(key[16:24], t.O)
	case POS:
		putID(key[0:8], t.P)
		putID(key[8:16], t.O)
		putID(key[16:24], t.S)
	case OSP:
		putID(key[0:8], t.O)
		putID(key[8:16], t.S)
		putID(key[16:24], t.P)
	}
	return key
}

// decode reconstructs the canonical (s,p,o) triple from a raw key of
// index w.
func decode(w Which, key []byte) Triple {
	a, b, c := getID(key[0:8]), getID(key[8:16]), getID(key[16:24])
	switch w {
	case SPO:
		return Triple{S: a, P: b, O: c}
	case POS:
		return Triple{P: a, O: b, S: c}
	default: // OSP
		return Triple{O: a, S: b, P: c}
	}
}

// Slot is one position of a pattern: either bound to a specific id, or a
// variable (unbound).
type Slot struct {
	Bound bool
	ID    dict.TermId
}

func Bound(id dict.TermId) Slot { return Slot{Bound: true, ID: id} }
func Var() Slot                 { return Slot{} }

// Pattern is the (ps, pp, po) lookup key described in spec §4.2.
type Pattern struct {
	S, P, O Slot
}

// ScanPlan is the index + prefix + post-filter selected for a pattern.
type ScanPlan struct {
	Index           Which
	Prefix          []byte
	NeedsPredicate  bool // B V B shape: OSP prefix doesn't pin the predicate
	ExpectedP       dict.TermId
}

// SelectIndex implements the §4.2 table exactly: eight pattern shapes,
// each mapped to an index, a prefix, and an optional post-filter.
func SelectIndex(p Pattern) ScanPlan {
	switch {
	case p.S.Bound && p.P.Bound && p.O.Bound:
		return ScanPlan{Index: SPO, Prefix: Key(SPO, Triple{p.S.ID, p.P.ID, p.O.ID})}
	case p.S.Bound && p.P.Bound && !p.O.Bound:
		return ScanPlan{Index: SPO, Prefix: Key(SPO, Triple{p.S.ID, p.P.ID, 0})[:16]}
	case p.S.Bound && !p.P.Bound && !p.O.Bound:
		return ScanPlan{Index: SPO, Prefix: Key(SPO, Triple{p.S.ID, 0, 0})[:8]}
	case !p.S.Bound && p.P.Bound && p.O.Bound:
		return ScanPlan{Index: POS, Prefix: Key(POS, Triple{0, p.P.ID, p.O.ID})[:16]}
	case !p.S.Bound && p.P.Bound && !p.O.Bound:
		return ScanPlan{Index: POS, Prefix: Key(POS, Triple{0, p.P.ID, 0})[:8]}
	case !p.S.Bound && !p.P.Bound && p.O.Bound:
		return ScanPlan{Index: OSP, Prefix: Key(OSP, Triple{0, 0, p.O.ID})[:8]}
	case p.S.Bound && !p.P.Bound && p.O.Bound:
		prefix := Key(OSP, Triple{S: p.S.ID, O: p.O.ID})[:16]
		return ScanPlan{Index: OSP, Prefix: prefix, NeedsPredicate: false}
	default: // V V V
		return ScanPlan{Index: SPO, Prefix: nil}
	}
}

// Insert writes the three index keys for t atomically (via the returned
// ops, meant to be merged into the caller's write batch alongside any
// dictionary writes — spec §4.1/§4.8 require the two be jointly
// committed). Duplicate inserts of an already-present triple are
// harmless: a Put of an already-set empty-value key is a no-op.
func Insert(t Triple) []kv.Op {
	return []kv.Op{
		kv.Put(kv.CFSPO, Key(SPO, t), nil),
		kv.Put(kv.CFPOS, Key(POS, t), nil),
		kv.Put(kv.CFOSP, Key(OSP, t), nil),
	}
}

// Delete removes the three index keys for t. Deleting an absent triple
// is a no-op (the underlying KV delete of a missing key is harmless).
func Delete(t Triple) []kv.Op {
	return []kv.Op{
		kv.Del(kv.CFSPO, Key(SPO, t)),
		kv.Del(kv.CFPOS, Key(POS, t)),
		kv.Del(kv.CFOSP, Key(OSP, t)),
	}
}

// Reader is satisfied by both *kv.Store and *kv.Snapshot, letting Scan
// run against either a live store or a point-in-time view.
type Reader interface {
	PrefixScan(cf kv.CF, prefix []byte) *kv.Iterator
}

// Scan executes plan against r, yielding matching id-triples in
// canonical (s,p,o) order. It is a lazy, single-pass, restartable-only-
// by-reissue sequence (spec §4.2).
func Scan(r Reader, plan ScanPlan) *ScanIterator {
	it := r.PrefixScan(plan.Index.CF(), plan.Prefix)
	return &ScanIterator{it: it, which: plan.Index, plan: plan}
}

type ScanIterator struct {
	it    *kv.Iterator
	which Which
	plan  ScanPlan
	cur   Triple
}

func (s *ScanIterator) Next() bool {
	for s.it.Next() {
		key := s.it.Key()
		if len(key) < 24 {
			continue
		}
		t := decode(s.which, key)
		if s.plan.NeedsPredicate && t.P != s.plan.ExpectedP {
			continue
		}
		s.cur = t
		return true
	}
	return false
}

func (s *ScanIterator) Triple() Triple { return s.cur }

func (s *ScanIterator) Close() { s.it.Close() }

// Count does a full prefix scan purely to count matches; used by
// Statistics collection (internal/stats) and by COUNT(*)-style fast
// paths when no cheaper structure is available.
func Count(r Reader, plan ScanPlan) (uint64, error) {
	it := Scan(r, plan)
	defer it.Close()
	var n uint64
	for it.Next() {
		n++
	}
	return n, nil
}
