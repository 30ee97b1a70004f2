// Package stats implements the cost statistics consumed by the optimizer
// (spec §3 "Statistics record", §4.4 "Statistics collection"): triple
// and distinct-term counts, a per-predicate histogram, and numeric
// equi-width histograms over inline-decoded objects.
package stats

import (
	"encoding/json"
	"time"

	"strconv"

	"github.com/relkv/rdfstore/internal/dict"
	"github.com/relkv/rdfstore/internal/errs"
	"github.com/relkv/rdfstore/internal/index"
	"github.com/relkv/rdfstore/internal/kv"
	"github.com/relkv/rdfstore/rdf"
)

// numericValue extracts a float64 from a literal term whose datatype is
// one of the numeric XSD types, per spec §4.4's numeric-histogram scope.
func numericValue(term rdf.Term) (float64, bool) {
	lit, ok := term.(*rdf.Literal)
	if !ok || lit.Datatype == nil {
		return 0, false
	}
	switch lit.Datatype.IRI {
	case rdf.XSDInteger, rdf.XSDDecimal, rdf.XSDDouble:
		v, err := strconv.ParseFloat(lit.Value, 64)
		return v, err == nil
	default:
		return 0, false
	}
}

// Histogram is an equi-width numeric histogram over a single predicate's
// inline-decoded objects.
type Histogram struct {
	Min, Max    float64
	BucketCount int
	BucketWidth float64
	Buckets     []uint64
	Total       uint64
}

// Overlap estimates the selectivity of [qmin,qmax] against h, per spec
// §4.4's range-selectivity algorithm: sum count_i * overlap(i)/width,
// clamped to [0,1].
func (h *Histogram) Overlap(qmin, qmax float64) float64 {
	if h == nil || h.Total == 0 || h.BucketWidth <= 0 {
		return 0
	}
	var sum float64
	for i, count := range h.Buckets {
		bucketLo := h.Min + float64(i)*h.BucketWidth
		bucketHi := bucketLo + h.BucketWidth
		lo := max64(bucketLo, qmin)
		hi := min64(bucketHi, qmax)
		if hi <= lo {
			continue
		}
		frac := (hi - lo) / h.BucketWidth
		sum += float64(count) * frac
	}
	sel := sum / float64(h.Total)
	if sel < 0 {
		sel = 0
	}
	if sel > 1 {
		sel = 1
	}
	return sel
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Statistics is the record described in spec §3.
type Statistics struct {
	TripleCount       uint64
	DistinctS         uint64
	DistinctP         uint64
	DistinctO         uint64
	PredicateHistogram map[uint64]uint64 // TermId(predicate) -> count
	NumericHistograms  map[uint64]*Histogram
	CollectedAt        int64
	Version            int
}

// PredicateCount returns predicate_histogram[p] if known, else a
// fallback estimate (spec §4.4's "Known predicate p only" rule).
func (s *Statistics) PredicateCount(p dict.TermId) uint64 {
	if c, ok := s.PredicateHistogram[uint64(p)]; ok {
		return c
	}
	if s.DistinctP == 0 {
		return s.TripleCount
	}
	return s.TripleCount / s.DistinctP
}

type wireStatistics struct {
	TripleCount        uint64                 `json:"triple_count"`
	DistinctS          uint64                 `json:"distinct_s"`
	DistinctP          uint64                 `json:"distinct_p"`
	DistinctO          uint64                 `json:"distinct_o"`
	PredicateHistogram map[string]uint64      `json:"predicate_histogram"`
	NumericHistograms  map[string]*Histogram  `json:"numeric_histograms"`
	CollectedAt        int64                  `json:"collected_at"`
	Version            int                    `json:"version"`
}

// Load reads the persisted statistics blob from the reserved id2str key
// (spec §6.5), returning ok=false if no statistics have been collected
// yet.
func Load(store *kv.Store) (*Statistics, bool, error) {
	raw, ok, err := store.Get(kv.CFID2Str, kv.StatsKey)
	if err != nil {
		return nil, false, errs.Wrap(errs.CodeIOError, err, "loading statistics blob")
	}
	if !ok {
		return nil, false, nil
	}
	var w wireStatistics
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, false, errs.Wrap(errs.CodeCorruptionDetected, err, "decoding statistics blob")
	}
	return w.toStatistics(), true, nil
}

func (w *wireStatistics) toStatistics() *Statistics {
	s := &Statistics{
		TripleCount:        w.TripleCount,
		DistinctS:          w.DistinctS,
		DistinctP:          w.DistinctP,
		DistinctO:          w.DistinctO,
		PredicateHistogram: map[uint64]uint64{},
		NumericHistograms:  map[uint64]*Histogram{},
		CollectedAt:        w.CollectedAt,
		Version:            w.Version,
	}
	for k, v := range w.PredicateHistogram {
		s.PredicateHistogram[parseU64(k)] = v
	}
	for k, v := range w.NumericHistograms {
		s.NumericHistograms[parseU64(k)] = v
	}
	return s
}

func parseU64(s string) uint64 {
	var v uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		v = v*10 + uint64(c-'0')
	}
	return v
}

// Save persists s as the opaque blob at the reserved statistics key.
func Save(store *kv.Store, s *Statistics) error {
	w := wireStatistics{
		TripleCount:        s.TripleCount,
		DistinctS:          s.DistinctS,
		DistinctP:          s.DistinctP,
		DistinctO:          s.DistinctO,
		PredicateHistogram: map[string]uint64{},
		NumericHistograms:  map[string]*Histogram{},
		CollectedAt:        s.CollectedAt,
		Version:            s.Version,
	}
	for k, v := range s.PredicateHistogram {
		w.PredicateHistogram[formatU64(k)] = v
	}
	for k, v := range s.NumericHistograms {
		w.NumericHistograms[formatU64(k)] = v
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return errs.Wrap(errs.CodeInternalError, err, "encoding statistics blob")
	}
	return store.WriteBatch([]kv.Op{kv.Put(kv.CFID2Str, kv.StatsKey, raw)}, true)
}

func formatU64(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

const defaultBucketCount = 32

// Collect implements spec §4.4's collection algorithm: full scans of SPO
// (distinct_s via dedup of the leading 8 bytes), POS (distinct_p and the
// predicate histogram), OSP (distinct_o), followed by a second pass per
// predicate building a numeric equi-width histogram over inline-decoded
// objects.
func Collect(store *kv.Store, d *dict.Dictionary, now int64) (*Statistics, error) {
	s := &Statistics{
		PredicateHistogram: map[uint64]uint64{},
		NumericHistograms:  map[uint64]*Histogram{},
		CollectedAt:        now,
		Version:            1,
	}

	{
		it := store.PrefixScan(kv.CFSPO, nil)
		var lastS uint64
		first := true
		var n uint64
		for it.Next() {
			key := it.Key()
			if len(key) < 8 {
				continue
			}
			n++
			sVal := beU64(key[0:8])
			if first || sVal != lastS {
				s.DistinctS++
				lastS = sVal
				first = false
			}
		}
		it.Close()
		s.TripleCount = n
	}

	{
		it := store.PrefixScan(kv.CFPOS, nil)
		var lastP uint64
		first := true
		for it.Next() {
			key := it.Key()
			if len(key) < 8 {
				continue
			}
			pVal := beU64(key[0:8])
			if first || pVal != lastP {
				s.DistinctP++
				lastP = pVal
				first = false
			}
			s.PredicateHistogram[pVal]++
		}
		it.Close()
	}

	{
		it := store.PrefixScan(kv.CFOSP, nil)
		var lastO uint64
		first := true
		for it.Next() {
			key := it.Key()
			if len(key) < 8 {
				continue
			}
			oVal := beU64(key[0:8])
			if first || oVal != lastO {
				s.DistinctO++
				lastO = oVal
				first = false
			}
		}
		it.Close()
	}

	for pRaw := range s.PredicateHistogram {
		h, err := collectNumericHistogram(store, d, dict.TermId(pRaw))
		if err != nil {
			return nil, err
		}
		if h != nil {
			s.NumericHistograms[pRaw] = h
		}
	}

	return s, nil
}

func beU64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// collectNumericHistogram runs the two-pass build spec §4.4 describes:
// a first streaming pass for min/max/count over numeric objects of
// predicate p, and a second pass bucketing each value.
func collectNumericHistogram(store *kv.Store, d *dict.Dictionary, p dict.TermId) (*Histogram, error) {
	plan := index.SelectIndex(index.Pattern{P: index.Bound(p)})
	var min, max float64
	var n uint64
	haveRange := false

	collectPass := func(visit func(v float64)) error {
		it := index.Scan(store, plan)
		defer it.Close()
		for it.Next() {
			t := it.Triple()
			term, err := d.Decode(t.O)
			if err != nil {
				continue
			}
			v, numeric := numericValue(term)
			if !numeric {
				continue
			}
			visit(v)
		}
		return nil
	}

	if err := collectPass(func(v float64) {
		if !haveRange {
			min, max = v, v
			haveRange = true
		} else {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		n++
	}); err != nil {
		return nil, err
	}
	if !haveRange || n == 0 {
		return nil, nil
	}

	width := (max - min) / float64(defaultBucketCount)
	if width <= 0 {
		width = 1
	}
	h := &Histogram{Min: min, Max: max, BucketCount: defaultBucketCount, BucketWidth: width, Buckets: make([]uint64, defaultBucketCount)}
	if err := collectPass(func(v float64) {
		idx := int((v - min) / width)
		if idx < 0 {
			idx = 0
		}
		if idx >= defaultBucketCount {
			idx = defaultBucketCount - 1
		}
		h.Buckets[idx]++
		h.Total++
	}); err != nil {
		return nil, err
	}
	return h, nil
}
