package dict

import (
	"encoding/binary"
	"sync"

	"github.com/relkv/rdfstore/internal/errs"
	"github.com/relkv/rdfstore/internal/kv"
	"github.com/relkv/rdfstore/rdf"
)

// counterAdminPrefix marks administrative keys in the str2id CF that are
// not canonical term rows. Real canonical keys always lead with a tag
// byte in [0,3]; 0xFF can never collide with one.
const counterAdminPrefix = 0xFF

// counterSafetyMargin is the per-tag headroom added when recovering the
// sequence counter from persisted state after a crash (spec §9 Open
// Questions: "choose a value that bounds the risk of id reuse... e.g.
// 1 000 or 10 000 depending on expected write rate"). This module assumes
// a bulk-loader-capable write rate and so picks the larger end of that
// range.
const counterSafetyMargin = 10_000

// Dictionary is the bidirectional term/TermId codec described in spec
// §4.1. encode_new is serialized per interned tag via the corresponding
// counter's mutex, matching the "single writer (or sharded writers, each
// owning a disjoint id-space slice)" permission in the contract — here
// each of the four interned tags is its own shard.
type Dictionary struct {
	kv       *kv.Store
	counters [4]*counter
}

type counter struct {
	mu   sync.Mutex
	next uint64
}

// Open builds a Dictionary over store, recovering each tag's sequence
// counter as max(persisted, 0) + safety margin (spec §3, §6.5).
func Open(store *kv.Store) (*Dictionary, error) {
	d := &Dictionary{kv: store}
	for tag := Tag(0); tag <= TagTypedLangLit; tag++ {
		persisted, err := d.loadCounter(tag)
		if err != nil {
			return nil, err
		}
		d.counters[tag] = &counter{next: persisted + counterSafetyMargin}
	}
	return d, nil
}

func (d *Dictionary) counterKey(tag Tag) []byte {
	return []byte{counterAdminPrefix, byte(tag)}
}

func (d *Dictionary) loadCounter(tag Tag) (uint64, error) {
	raw, ok, err := d.kv.Get(kv.CFStr2ID, d.counterKey(tag))
	if err != nil {
		return 0, errs.Wrap(errs.CodeIOError, err, "loading sequence counter for tag %d", tag)
	}
	if !ok || len(raw) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Lookup is the read-only, concurrency-safe half of the contract: it
// never allocates a new id.
func (d *Dictionary) Lookup(term rdf.Term) (TermId, bool, error) {
	if id, ok, err := encodeInline(term); err != nil {
		return 0, false, err
	} else if ok {
		return id, true, nil
	}
	tag, canonical, err := canonicalize(term)
	if err != nil {
		return 0, false, err
	}
	key := append([]byte{byte(tag)}, canonical...)
	raw, ok, err := d.kv.Get(kv.CFStr2ID, key)
	if err != nil {
		return 0, false, errs.Wrap(errs.CodeIOError, err, "dictionary lookup")
	}
	if !ok {
		return 0, false, nil
	}
	return TermId(binary.BigEndian.Uint64(raw)), true, nil
}

// Encode is Lookup but fails with DictionaryMissing instead of ok=false,
// for callers that require an existing id (e.g. a query pattern that
// referenced a literal that was never inserted: no match is possible).
func (d *Dictionary) Encode(term rdf.Term) (TermId, error) {
	id, ok, err := d.Lookup(term)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errs.New(errs.CodeDictionaryMissing, "term %s is not in the dictionary", term.TermString()).WithRetriable(false)
	}
	return id, nil
}

// EncodeNew inserts the term if absent, returning its (possibly new) id.
// Inline-encodable terms never touch the persistent dictionary.
func (d *Dictionary) EncodeNew(term rdf.Term) (TermId, []kv.Op, error) {
	if id, ok, err := encodeInline(term); err != nil {
		return 0, nil, err
	} else if ok {
		return id, nil, nil
	}

	tag, canonical, err := canonicalize(term)
	if err != nil {
		return 0, nil, err
	}
	key := append([]byte{byte(tag)}, canonical...)

	if raw, ok, err := d.kv.Get(kv.CFStr2ID, key); err != nil {
		return 0, nil, errs.Wrap(errs.CodeIOError, err, "dictionary lookup during encode_new")
	} else if ok {
		return TermId(binary.BigEndian.Uint64(raw)), nil, nil
	}

	c := d.counters[tag]
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.next
	if seq > payloadMask {
		return 0, nil, errs.New(errs.CodeCounterExhausted, "sequence counter for tag %d exhausted", tag)
	}
	c.next++

	id := makeID(tag, seq)
	idBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(idBytes, uint64(id))

	counterBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(counterBytes, c.next)

	id2strKey := make([]byte, 8)
	binary.BigEndian.PutUint64(id2strKey, uint64(id))

	ops := []kv.Op{
		kv.Put(kv.CFStr2ID, key, idBytes),
		kv.Put(kv.CFID2Str, id2strKey, append([]byte{byte(tag)}, canonical...)),
		kv.Put(kv.CFStr2ID, d.counterKey(tag), counterBytes),
	}
	return id, ops, nil
}

// Decode reconstructs the original term from an id.
func (d *Dictionary) Decode(id TermId) (rdf.Term, error) {
	if term, ok := decodeInline(id); ok {
		return term, nil
	}
	idBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(idBytes, uint64(id))
	raw, ok, err := d.kv.Get(kv.CFID2Str, idBytes)
	if err != nil {
		return nil, errs.Wrap(errs.CodeIOError, err, "decoding term id")
	}
	if !ok {
		return nil, errs.New(errs.CodeDictionaryMissing, "no dictionary row for id %d", id)
	}
	return decanonicalize(Tag(raw[0]), raw[1:])
}
