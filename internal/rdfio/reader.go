package rdfio

import (
	"io"
	"os"

	"github.com/relkv/rdfstore/internal/errs"
	"github.com/relkv/rdfstore/rdf"
)

// ReadAll parses every triple out of r, reading it fully into memory
// first — this package targets the loader's test fixtures and batch
// ingestion paths, not multi-gigabyte streaming parses.
func ReadAll(r io.Reader) ([]rdf.Triple, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.CodeIOError, err, "reading rdf input")
	}
	triples, err := NewParser(string(data)).Parse()
	if err != nil {
		return nil, errs.Wrap(errs.CodeParseError, err, "parsing rdf input")
	}
	return triples, nil
}

// LoadFile is the loader's convenience entrypoint: read path and parse
// it as Turtle/N-Triples in one call.
func LoadFile(path string) ([]rdf.Triple, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.CodeFileNotFound, err, "opening rdf file %s", path)
	}
	defer f.Close()
	return ReadAll(f)
}
