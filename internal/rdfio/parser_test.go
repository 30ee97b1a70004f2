package rdfio

import (
	"strings"
	"testing"

	"github.com/relkv/rdfstore/rdf"
)

func TestParseSimpleTriple(t *testing.T) {
	triples, err := NewParser(`<http://example.org/s> <http://example.org/p> <http://example.org/o> .`).Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(triples) != 1 {
		t.Fatalf("expected 1 triple, got %d", len(triples))
	}
	tr := triples[0]
	if !tr.Subject.Equals(&rdf.NamedNode{IRI: "http://example.org/s"}) {
		t.Errorf("unexpected subject: %v", tr.Subject)
	}
	if !tr.Object.Equals(&rdf.NamedNode{IRI: "http://example.org/o"}) {
		t.Errorf("unexpected object: %v", tr.Object)
	}
}

func TestParseLiteralsWithLangAndDatatype(t *testing.T) {
	input := `
		<http://example.org/s> <http://example.org/name> "Alice"@en .
		<http://example.org/s> <http://example.org/age> "30"^^<http://www.w3.org/2001/XMLSchema#integer> .
		<http://example.org/s> <http://example.org/bio> "plain" .
	`
	triples, err := NewParser(input).Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(triples) != 3 {
		t.Fatalf("expected 3 triples, got %d", len(triples))
	}

	name, ok := triples[0].Object.(*rdf.Literal)
	if !ok || name.Value != "Alice" || name.Language != "en" {
		t.Errorf("unexpected name literal: %+v", triples[0].Object)
	}
	age, ok := triples[1].Object.(*rdf.Literal)
	if !ok || age.Value != "30" || age.Datatype == nil || age.Datatype.IRI != rdf.XSDInteger {
		t.Errorf("unexpected age literal: %+v", triples[1].Object)
	}
	bio, ok := triples[2].Object.(*rdf.Literal)
	if !ok || bio.Value != "plain" || !bio.IsPlainString() {
		t.Errorf("unexpected bio literal: %+v", triples[2].Object)
	}
}

func TestParseEscapesInLiterals(t *testing.T) {
	triples, err := NewParser(`<http://example.org/s> <http://example.org/p> "line1\nline2\ttabbed" .`).Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lit := triples[0].Object.(*rdf.Literal)
	if lit.Value != "line1\nline2\ttabbed" {
		t.Errorf("unexpected unescaped value: %q", lit.Value)
	}
}

func TestParseBlankNode(t *testing.T) {
	triples, err := NewParser(`_:b0 <http://example.org/p> <http://example.org/o> .`).Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bn, ok := triples[0].Subject.(*rdf.BlankNode)
	if !ok || bn.ID != "b0" {
		t.Errorf("unexpected blank node subject: %+v", triples[0].Subject)
	}
}

func TestParseDecimalAndIntegerNumbers(t *testing.T) {
	triples, err := NewParser(`
		<http://example.org/s> <http://example.org/p> 42 .
		<http://example.org/s> <http://example.org/p> -3.14 .
	`).Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	intLit := triples[0].Object.(*rdf.Literal)
	if intLit.Value != "42" || intLit.Datatype.IRI != rdf.XSDInteger {
		t.Errorf("unexpected integer literal: %+v", intLit)
	}
	decLit := triples[1].Object.(*rdf.Literal)
	if decLit.Value != "-3.14" || decLit.Datatype.IRI != rdf.XSDDecimal {
		t.Errorf("unexpected decimal literal: %+v", decLit)
	}
}

func TestParsePrefixDirectiveExpandsPrefixedNames(t *testing.T) {
	input := `
		@prefix foaf: <http://xmlns.com/foaf/0.1/> .
		<http://example.org/alice> foaf:name "Alice" .
	`
	triples, err := NewParser(input).Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(triples) != 1 {
		t.Fatalf("expected 1 triple, got %d", len(triples))
	}
	pred, ok := triples[0].Predicate.(*rdf.NamedNode)
	if !ok || pred.IRI != "http://xmlns.com/foaf/0.1/name" {
		t.Errorf("expected the prefix expanded, got %+v", triples[0].Predicate)
	}
}

func TestParseSkipsCommentsAndBaseDirective(t *testing.T) {
	input := `
		# a leading comment
		@base <http://example.org/> .
		<http://example.org/s> <http://example.org/p> <http://example.org/o> . # trailing comment
	`
	triples, err := NewParser(input).Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(triples) != 1 {
		t.Errorf("expected 1 triple, got %d", len(triples))
	}
}

func TestParseRejectsMissingTerminator(t *testing.T) {
	_, err := NewParser(`<http://example.org/s> <http://example.org/p> <http://example.org/o>`).Parse()
	if err == nil {
		t.Fatalf("expected an error for a triple with no trailing '.'")
	}
}

func TestReadAllDelegatesToParser(t *testing.T) {
	triples, err := ReadAll(strings.NewReader(`<http://example.org/s> <http://example.org/p> <http://example.org/o> .`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(triples) != 1 {
		t.Errorf("expected 1 triple, got %d", len(triples))
	}
}
