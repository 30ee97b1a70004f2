package dict

import (
	"bytes"
	"fmt"

	"github.com/relkv/rdfstore/internal/errs"
	"github.com/relkv/rdfstore/rdf"
)

// canonicalize produces the dictionary row key for a term that must be
// interned (everything the inline path in termid.go rejected): the tag
// byte followed by enough bytes to exactly reconstruct the term (spec
// §3's "Dictionary rows" entity). Terms of different tags never collide
// because the tag byte leads every canonical form.
func canonicalize(term rdf.Term) (Tag, []byte, error) {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return TagIRI, []byte(t.IRI), nil
	case *rdf.BlankNode:
		return TagBlankNode, []byte(t.ID), nil
	case *rdf.Literal:
		if t.Datatype == nil || t.Datatype.IRI == rdf.XSDString {
			return TagSimpleLiteral, []byte(t.Value), nil
		}
		var buf bytes.Buffer
		if t.IsLangString() {
			buf.WriteByte(1) // kind: language-tagged
			buf.WriteString(t.Language)
		} else {
			buf.WriteByte(0) // kind: typed
			buf.WriteString(t.Datatype.IRI)
		}
		buf.WriteByte(0)
		buf.WriteString(t.Value)
		return TagTypedLangLit, buf.Bytes(), nil
	default:
		return 0, nil, errs.New(errs.CodeInvalidInput, "unsupported term type %T", term)
	}
}

func decanonicalize(tag Tag, raw []byte) (rdf.Term, error) {
	switch tag {
	case TagIRI:
		return &rdf.NamedNode{IRI: string(raw)}, nil
	case TagBlankNode:
		return &rdf.BlankNode{ID: string(raw)}, nil
	case TagSimpleLiteral:
		return rdf.NewLiteral(string(raw)), nil
	case TagTypedLangLit:
		if len(raw) < 2 {
			return nil, errs.New(errs.CodeCorruptionDetected, "truncated dictionary row for tag %d", tag)
		}
		kind := raw[0]
		rest := raw[1:]
		sep := bytes.IndexByte(rest, 0)
		if sep < 0 {
			return nil, errs.New(errs.CodeCorruptionDetected, "malformed dictionary row for tag %d", tag)
		}
		head, value := string(rest[:sep]), string(rest[sep+1:])
		if kind == 1 {
			return rdf.NewLangLiteral(value, head), nil
		}
		return rdf.NewTypedLiteral(value, head), nil
	default:
		return nil, fmt.Errorf("tag %d is not an interned tag", tag)
	}
}
