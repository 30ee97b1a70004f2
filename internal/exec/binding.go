// Package exec is the iterator-driven SPARQL algebra evaluator (spec
// §4.3): BGP with index-driven joins, hash/left/union joins, filters,
// property paths, solution modifiers, aggregation, and result shaping.
package exec

import (
	"sort"
	"strings"

	"github.com/relkv/rdfstore/internal/dict"
)

// Binding maps a variable key (algebra.Var.Key()) to the TermId it is
// bound to. Absence of a key means unbound (spec §3).
type Binding map[string]dict.TermId

func (b Binding) Clone() Binding {
	out := make(Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Compatible reports whether a and b agree on every variable they share
// (spec §4.3.2).
func Compatible(a, b Binding) bool {
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	for k, v := range small {
		if bv, ok := big[k]; ok && bv != v {
			return false
		}
	}
	return true
}

// Merge returns the union of a and b. Callers must check Compatible
// first; Merge does not re-check.
func Merge(a, b Binding) Binding {
	out := make(Binding, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Signature is a structural-equality key used by DISTINCT/REDUCED and by
// hash-join probing, stable regardless of map iteration order.
func Signature(b Binding) string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(itoa(uint64(b[k])))
		sb.WriteByte(';')
	}
	return sb.String()
}

func itoa(v uint64) string {
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

// JoinKeySignature builds a signature over only the shared keys, used by
// the hash join's probe side.
func JoinKeySignature(b Binding, keys []string) string {
	var sb strings.Builder
	for _, k := range keys {
		v, ok := b[k]
		sb.WriteString(k)
		sb.WriteByte(':')
		if ok {
			sb.WriteString(itoa(uint64(v)))
		} else {
			sb.WriteString("?")
		}
		sb.WriteByte(';')
	}
	return sb.String()
}

// SharedVars returns the variable keys that appear in both a's and b's
// binding spaces, computed from the static plan rather than any single
// binding instance.
func SharedVars(a, b map[string]struct{}) []string {
	var shared []string
	for k := range a {
		if _, ok := b[k]; ok {
			shared = append(shared, k)
		}
	}
	sort.Strings(shared)
	return shared
}
