package algebra

// Path is the property-path algebra of spec §4.3.6: Link, Inverse,
// Sequence, Alternative, NegatedPropertySet, ZeroOrMore, OneOrMore,
// ZeroOrOne.
type Path interface {
	pathNode()
}

type LinkPath struct{ IRI Term }

func (*LinkPath) pathNode() {}

type InversePath struct{ Path Path }

func (*InversePath) pathNode() {}

type SequencePath struct{ First, Second Path }

func (*SequencePath) pathNode() {}

type AlternativePath struct{ First, Second Path }

func (*AlternativePath) pathNode() {}

type NegatedPropertySetPath struct{ IRIs []Term }

func (*NegatedPropertySetPath) pathNode() {}

type ZeroOrMorePath struct{ Path Path }

func (*ZeroOrMorePath) pathNode() {}

type OneOrMorePath struct{ Path Path }

func (*OneOrMorePath) pathNode() {}

type ZeroOrOnePath struct{ Path Path }

func (*ZeroOrOnePath) pathNode() {}

// Reverse implements the path-reversal rules spec §4.3.6 lists, used by
// the bidirectional BFS evaluator to search backward from the object.
func Reverse(p Path) Path {
	switch t := p.(type) {
	case *LinkPath:
		return &InversePath{Path: t}
	case *InversePath:
		return t.Path
	case *SequencePath:
		return &SequencePath{First: Reverse(t.Second), Second: Reverse(t.First)}
	case *AlternativePath:
		return &AlternativePath{First: Reverse(t.First), Second: Reverse(t.Second)}
	case *ZeroOrMorePath:
		return &ZeroOrMorePath{Path: Reverse(t.Path)}
	case *OneOrMorePath:
		return &OneOrMorePath{Path: Reverse(t.Path)}
	case *ZeroOrOnePath:
		return &ZeroOrOnePath{Path: Reverse(t.Path)}
	case *NegatedPropertySetPath:
		return t
	default:
		return p
	}
}

// IsRecursive reports whether p requires BFS evaluation rather than the
// fixed-length index-join compilation (spec §4.3.6 "Fixed-length
// optimization").
func IsRecursive(p Path) bool {
	switch t := p.(type) {
	case *ZeroOrMorePath, *OneOrMorePath, *ZeroOrOnePath:
		return true
	case *SequencePath:
		return IsRecursive(t.First) || IsRecursive(t.Second)
	case *AlternativePath:
		return IsRecursive(t.First) || IsRecursive(t.Second)
	case *InversePath:
		return IsRecursive(t.Path)
	default:
		return false
	}
}

// FixedLinks flattens a non-recursive sequence of Link/Inverse(Link)
// steps into an ordered chain, returning ok=false if p contains anything
// else (Alternative, NegatedPropertySet, or a recursive operator).
func FixedLinks(p Path) (steps []fixedStep, ok bool) {
	switch t := p.(type) {
	case *LinkPath:
		return []fixedStep{{IRI: t.IRI, Inverse: false}}, true
	case *InversePath:
		if lp, isLink := t.Path.(*LinkPath); isLink {
			return []fixedStep{{IRI: lp.IRI, Inverse: true}}, true
		}
		return nil, false
	case *SequencePath:
		a, ok1 := FixedLinks(t.First)
		b, ok2 := FixedLinks(t.Second)
		if !ok1 || !ok2 {
			return nil, false
		}
		return append(a, b...), true
	default:
		return nil, false
	}
}

type fixedStep struct {
	IRI     Term
	Inverse bool
}
