// Package resultenc serializes query results in the two SPARQL 1.1
// result formats (JSON, XML) plus N-Triples for CONSTRUCT/DESCRIBE,
// adapted from aleksaelezovic-trigo/internal/server/results.go: the
// same BindingValue shape for JSON (via stdlib encoding/json, the
// teacher's own choice — no third-party JSON library earns its keep
// over a flat, already-struct-shaped result), the same hand-built XML
// string writer (the result schema is too flat and fixed for
// encoding/xml's struct-tag machinery to pay for itself, matching the
// teacher's own call here), and the same N-Triples literal writer.
package resultenc

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/relkv/rdfstore/rdf"
)

// SelectResult is what internal/exec.EvalSelect/EvalAsk produce, bundled
// with the variable order the query asked to project (empty for
// SELECT *, in which case the variable set is derived from the first
// binding encountered).
type SelectResult struct {
	Vars     []string
	Bindings []map[string]rdf.Term
	Bounded  bool
}

func (r SelectResult) varNames() []string {
	if len(r.Vars) > 0 {
		return r.Vars
	}
	seen := make(map[string]bool)
	var names []string
	for _, b := range r.Bindings {
		for v := range b {
			if !seen[v] {
				seen[v] = true
				names = append(names, v)
			}
		}
	}
	sort.Strings(names)
	return names
}

// --- SPARQL 1.1 Query Results JSON Format (https://www.w3.org/TR/sparql11-results-json/) ---

type jsonResults struct {
	Head    jsonHead     `json:"head"`
	Results *jsonBinding `json:"results,omitempty"`
	Boolean *bool        `json:"boolean,omitempty"`
}

type jsonHead struct {
	Vars []string `json:"vars"`
}

type jsonBinding struct {
	Bindings []map[string]jsonValue `json:"bindings"`
}

type jsonValue struct {
	Type     string  `json:"type"`
	Value    string  `json:"value"`
	Datatype *string `json:"datatype,omitempty"`
	XMLLang  *string `json:"xml:lang,omitempty"`
}

func termToJSONValue(term rdf.Term) jsonValue {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return jsonValue{Type: "uri", Value: t.IRI}
	case *rdf.BlankNode:
		return jsonValue{Type: "bnode", Value: t.ID}
	case *rdf.Literal:
		v := jsonValue{Type: "literal", Value: t.Value}
		if t.Language != "" {
			lang := t.Language
			v.XMLLang = &lang
		} else if t.Datatype != nil && t.Datatype.IRI != rdf.XSDString {
			dt := t.Datatype.IRI
			v.Datatype = &dt
		}
		return v
	default:
		return jsonValue{Type: "literal", Value: term.TermString()}
	}
}

// EncodeSelectJSON writes r in SPARQL 1.1 Results JSON format.
func EncodeSelectJSON(r SelectResult) ([]byte, error) {
	names := r.varNames()
	rows := make([]map[string]jsonValue, 0, len(r.Bindings))
	for _, b := range r.Bindings {
		row := make(map[string]jsonValue, len(b))
		for name, term := range b {
			row[name] = termToJSONValue(term)
		}
		rows = append(rows, row)
	}
	out := jsonResults{Head: jsonHead{Vars: names}, Results: &jsonBinding{Bindings: rows}}
	return json.MarshalIndent(out, "", "  ")
}

// EncodeAskJSON writes the boolean result of an ASK query.
func EncodeAskJSON(result bool) ([]byte, error) {
	out := jsonResults{Head: jsonHead{Vars: []string{}}, Boolean: &result}
	return json.MarshalIndent(out, "", "  ")
}

// --- SPARQL Query Results XML Format (https://www.w3.org/TR/rdf-sparql-XMLres/) ---

// EncodeSelectXML writes r in SPARQL Results XML format.
func EncodeSelectXML(r SelectResult) ([]byte, error) {
	names := r.varNames()
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?>\n<sparql xmlns=\"http://www.w3.org/2005/sparql-results#\">\n  <head>\n")
	for _, name := range names {
		fmt.Fprintf(&b, "    <variable name=%q/>\n", name)
	}
	b.WriteString("  </head>\n  <results>\n")
	for _, binding := range r.Bindings {
		b.WriteString("    <result>\n")
		for _, name := range names {
			term, ok := binding[name]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "      <binding name=%q>\n", name)
			b.WriteString(termToXML(term, "        "))
			b.WriteString("      </binding>\n")
		}
		b.WriteString("    </result>\n")
	}
	b.WriteString("  </results>\n</sparql>\n")
	return []byte(b.String()), nil
}

// EncodeAskXML writes the boolean result of an ASK query.
func EncodeAskXML(result bool) ([]byte, error) {
	boolStr := "false"
	if result {
		boolStr = "true"
	}
	xml := "<?xml version=\"1.0\"?>\n<sparql xmlns=\"http://www.w3.org/2005/sparql-results#\">\n  <head/>\n  <boolean>" + boolStr + "</boolean>\n</sparql>\n"
	return []byte(xml), nil
}

func termToXML(term rdf.Term, indent string) string {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return indent + "<uri>" + xmlEscape(t.IRI) + "</uri>\n"
	case *rdf.BlankNode:
		return indent + "<bnode>" + xmlEscape(t.ID) + "</bnode>\n"
	case *rdf.Literal:
		if t.Language != "" {
			return indent + "<literal xml:lang=\"" + xmlEscape(t.Language) + "\">" + xmlEscape(t.Value) + "</literal>\n"
		}
		if t.Datatype != nil && t.Datatype.IRI != rdf.XSDString {
			return indent + "<literal datatype=\"" + xmlEscape(t.Datatype.IRI) + "\">" + xmlEscape(t.Value) + "</literal>\n"
		}
		return indent + "<literal>" + xmlEscape(t.Value) + "</literal>\n"
	default:
		return indent + "<literal>" + xmlEscape(term.TermString()) + "</literal>\n"
	}
}

func xmlEscape(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;", "'", "&apos;")
	return replacer.Replace(s)
}

// --- N-Triples (CONSTRUCT/DESCRIBE) ---

// EncodeNTriples writes triples as one N-Triples line each, in the
// order given.
func EncodeNTriples(triples []rdf.Triple) []byte {
	var b strings.Builder
	for _, t := range triples {
		b.WriteString(t.Subject.TermString())
		b.WriteByte(' ')
		b.WriteString(t.Predicate.TermString())
		b.WriteByte(' ')
		b.WriteString(t.Object.TermString())
		b.WriteString(" .\n")
	}
	return []byte(b.String())
}
