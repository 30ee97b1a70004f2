package resultenc

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/relkv/rdfstore/rdf"
)

func TestEncodeSelectJSON(t *testing.T) {
	r := SelectResult{
		Vars: []string{"person", "age"},
		Bindings: []map[string]rdf.Term{
			{
				"person": &rdf.NamedNode{IRI: "http://example.org/alice"},
				"age":    rdf.NewIntegerLiteral(30),
			},
			{
				"person": &rdf.NamedNode{IRI: "http://example.org/bob"},
			},
		},
	}

	out, err := EncodeSelectJSON(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed jsonResults
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(parsed.Head.Vars) != 2 {
		t.Errorf("expected 2 head vars, got %d", len(parsed.Head.Vars))
	}
	if parsed.Results == nil || len(parsed.Results.Bindings) != 2 {
		t.Fatalf("expected 2 result bindings, got %+v", parsed.Results)
	}
	alice := parsed.Results.Bindings[0]["person"]
	if alice.Type != "uri" || alice.Value != "http://example.org/alice" {
		t.Errorf("unexpected person binding: %+v", alice)
	}
	age := parsed.Results.Bindings[0]["age"]
	if age.Type != "literal" || age.Value != "30" || age.Datatype == nil || *age.Datatype != rdf.XSDInteger {
		t.Errorf("unexpected age binding: %+v", age)
	}
	if _, ok := parsed.Results.Bindings[1]["age"]; ok {
		t.Errorf("expected bob's row to have no age binding")
	}
}

func TestEncodeAskJSON(t *testing.T) {
	out, err := EncodeAskJSON(true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var parsed jsonResults
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if parsed.Boolean == nil || *parsed.Boolean != true {
		t.Errorf("expected boolean=true, got %+v", parsed.Boolean)
	}
}

func TestEncodeSelectXML(t *testing.T) {
	r := SelectResult{
		Vars: []string{"name"},
		Bindings: []map[string]rdf.Term{
			{"name": rdf.NewLangLiteral("Alice & Bob", "en")},
		},
	}
	out, err := EncodeSelectXML(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, `<variable name="name"/>`) {
		t.Errorf("missing variable declaration in XML:\n%s", s)
	}
	if !strings.Contains(s, "Alice &amp; Bob") {
		t.Errorf("expected escaped literal value in XML:\n%s", s)
	}
	if !strings.Contains(s, `xml:lang="en"`) {
		t.Errorf("expected xml:lang attribute in XML:\n%s", s)
	}
}

func TestEncodeAskXML(t *testing.T) {
	out, err := EncodeAskXML(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), "<boolean>false</boolean>") {
		t.Errorf("unexpected XML: %s", out)
	}
}

func TestEncodeNTriples(t *testing.T) {
	triples := []rdf.Triple{
		{
			Subject:   &rdf.NamedNode{IRI: "http://example.org/s"},
			Predicate: &rdf.NamedNode{IRI: "http://example.org/p"},
			Object:    rdf.NewLiteral("hello"),
		},
	}
	out := string(EncodeNTriples(triples))
	want := `<http://example.org/s> <http://example.org/p> "hello" .` + "\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestVarNamesFallsBackToBindingKeys(t *testing.T) {
	r := SelectResult{
		Bindings: []map[string]rdf.Term{
			{"x": &rdf.NamedNode{IRI: "http://example.org/x"}},
		},
	}
	names := r.varNames()
	if len(names) != 1 || names[0] != "x" {
		t.Errorf("expected [x], got %v", names)
	}
}
