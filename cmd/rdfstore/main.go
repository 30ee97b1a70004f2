// Command rdfstore is the CLI entrypoint, following
// aleksaelezovic-trigo/cmd/trigo's direct-subcommand shape (demo,
// query, plus this store's own load/stats) but parsed with the
// standard flag package per subcommand rather than raw os.Args
// indexing, and logged through zerolog (cuemby-warren's structured
// logging idiom) instead of the teacher's plain fmt/log.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/relkv/rdfstore/internal/loader"
	"github.com/relkv/rdfstore/internal/rdfio"
	"github.com/relkv/rdfstore/internal/resultenc"
	"github.com/relkv/rdfstore/internal/sparqlparser"
	"github.com/relkv/rdfstore/rdf"
	"github.com/relkv/rdfstore/store"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "demo":
		runDemo()
	case "load":
		runLoad(os.Args[2:])
	case "query":
		runQuery(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: rdfstore <command> [args]")
	fmt.Println("Commands:")
	fmt.Println("  demo                 - load sample data into a throwaway in-memory store and run a query")
	fmt.Println("  load -db PATH FILE   - bulk-load an N-Triples/Turtle-subset file")
	fmt.Println("  query -db PATH Q     - run a SPARQL query (SELECT/ASK/CONSTRUCT/DESCRIBE)")
	fmt.Println("  stats -db PATH       - print collected statistics")
}

func runDemo() {
	log.Info().Msg("opening in-memory demo store")
	s, err := store.OpenInMemory(store.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer s.Close()

	alice := &rdf.NamedNode{IRI: "http://example.org/alice"}
	bob := &rdf.NamedNode{IRI: "http://example.org/bob"}
	carol := &rdf.NamedNode{IRI: "http://example.org/carol"}
	knows := &rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/knows"}
	name := &rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/name"}
	age := &rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/age"}

	triples := []rdf.Triple{
		{Subject: alice, Predicate: name, Object: rdf.NewLiteral("Alice")},
		{Subject: alice, Predicate: age, Object: rdf.NewIntegerLiteral(30)},
		{Subject: alice, Predicate: knows, Object: bob},
		{Subject: bob, Predicate: name, Object: rdf.NewLiteral("Bob")},
		{Subject: bob, Predicate: age, Object: rdf.NewIntegerLiteral(25)},
		{Subject: bob, Predicate: knows, Object: carol},
		{Subject: carol, Predicate: name, Object: rdf.NewLiteral("Carol")},
		{Subject: carol, Predicate: age, Object: rdf.NewIntegerLiteral(28)},
	}

	n, err := s.Insert(triples)
	if err != nil {
		log.Fatal().Err(err).Msg("insert failed")
	}
	log.Info().Int("inserted", n).Msg("sample data loaded")

	if err := s.RefreshStatistics(); err != nil {
		log.Fatal().Err(err).Msg("failed to collect statistics")
	}

	q := `
		SELECT ?person ?name ?age WHERE {
			?person <http://xmlns.com/foaf/0.1/name> ?name .
			?person <http://xmlns.com/foaf/0.1/age> ?age .
		}
	`
	result, err := s.Query(q)
	if err != nil {
		log.Fatal().Err(err).Msg("query failed")
	}
	printSelectTable(result.Select)
}

func runLoad(args []string) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	dbPath := fs.String("db", "./rdfstore_data", "on-disk store path")
	preset := fs.String("preset", "auto", "batch size preset: auto|low|high")
	bulk := fs.Bool("bulk", true, "defer fsync until the final flush")
	fs.Parse(args)
	if fs.NArg() < 1 {
		log.Fatal().Msg("usage: rdfstore load -db PATH FILE")
	}
	path := fs.Arg(0)

	triples, err := rdfio.LoadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("failed to parse input file")
	}
	log.Info().Int("triples", len(triples)).Str("file", path).Msg("parsed input file")

	s, err := store.Open(*dbPath, store.Config{})
	if err != nil {
		log.Fatal().Err(err).Str("path", *dbPath).Msg("failed to open store")
	}
	defer s.Close()

	cfg := loader.Config{
		Preset:     parsePreset(*preset),
		BulkMode:   *bulk,
		OnProgress: func(p loader.Progress) loader.Action {
			log.Info().Msg(p.String())
			return loader.Continue
		},
	}

	ch := make(chan rdf.Triple)
	go func() {
		defer close(ch)
		for _, t := range triples {
			ch <- t
		}
	}()

	res, err := s.BulkLoad(ch, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bulk load failed")
	}
	log.Info().Uint64("loaded", res.TriplesLoaded).Bool("halted", res.Halted).Msg("bulk load complete")
}

func parsePreset(name string) loader.Preset {
	switch name {
	case "low":
		return loader.PresetLow
	case "high":
		return loader.PresetHigh
	default:
		return loader.PresetAuto
	}
}

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	dbPath := fs.String("db", "./rdfstore_data", "on-disk store path")
	format := fs.String("format", "table", "output format: table|json|xml|ntriples")
	fs.Parse(args)
	if fs.NArg() < 1 {
		log.Fatal().Msg("usage: rdfstore query -db PATH \"<sparql>\"")
	}
	queryText := fs.Arg(0)

	s, err := store.Open(*dbPath, store.Config{})
	if err != nil {
		log.Fatal().Err(err).Str("path", *dbPath).Msg("failed to open store")
	}
	defer s.Close()

	result, err := s.Query(queryText)
	if err != nil {
		log.Fatal().Err(err).Msg("query failed")
	}
	printResult(result, *format)
}

func printResult(result store.QueryResult, format string) {
	switch result.Kind {
	case sparqlparser.QuerySelect:
		printSelect(result.Select, format)
	case sparqlparser.QueryAsk:
		printAsk(result.Ask, format)
	default: // QueryConstruct, QueryDescribe
		printGraphResult(result, format)
	}
}

func printSelect(sel resultenc.SelectResult, format string) {
	switch format {
	case "json":
		out, err := resultenc.EncodeSelectJSON(sel)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to encode results")
		}
		fmt.Println(string(out))
	case "xml":
		out, err := resultenc.EncodeSelectXML(sel)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to encode results")
		}
		fmt.Println(string(out))
	default:
		printSelectTable(sel)
	}
}

func printAsk(result bool, format string) {
	switch format {
	case "json":
		out, err := resultenc.EncodeAskJSON(result)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to encode result")
		}
		fmt.Println(string(out))
	case "xml":
		out, err := resultenc.EncodeAskXML(result)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to encode result")
		}
		fmt.Println(string(out))
	default:
		fmt.Printf("%t\n", result)
	}
}

func printGraphResult(result store.QueryResult, format string) {
	switch format {
	case "json", "xml":
		log.Fatal().Str("format", format).Msg("CONSTRUCT/DESCRIBE results are only available as ntriples")
	default:
		fmt.Print(string(resultenc.EncodeNTriples(result.Triples)))
	}
}

func printSelectTable(r resultenc.SelectResult) {
	names := r.Vars
	if len(names) == 0 {
		for v := range firstBindingVars(r) {
			names = append(names, v)
		}
	}
	for _, name := range names {
		fmt.Printf("%-20s | ", name)
	}
	fmt.Println()
	for _, binding := range r.Bindings {
		for _, name := range names {
			if term, ok := binding[name]; ok {
				fmt.Printf("%-20s | ", term.TermString())
			} else {
				fmt.Printf("%-20s | ", "")
			}
		}
		fmt.Println()
	}
	fmt.Printf("\n%d result(s)\n", len(r.Bindings))
}

func firstBindingVars(r resultenc.SelectResult) map[string]struct{} {
	out := make(map[string]struct{})
	if len(r.Bindings) == 0 {
		return out
	}
	for k := range r.Bindings[0] {
		out[k] = struct{}{}
	}
	return out
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dbPath := fs.String("db", "./rdfstore_data", "on-disk store path")
	refresh := fs.Bool("refresh", false, "recompute statistics before printing")
	fs.Parse(args)

	s, err := store.Open(*dbPath, store.Config{})
	if err != nil {
		log.Fatal().Err(err).Str("path", *dbPath).Msg("failed to open store")
	}
	defer s.Close()

	if *refresh {
		if err := s.RefreshStatistics(); err != nil {
			log.Fatal().Err(err).Msg("failed to refresh statistics")
		}
	}

	st := s.Statistics()
	fmt.Printf("triple_count:   %d\n", st.TripleCount)
	fmt.Printf("distinct_s:     %d\n", st.DistinctS)
	fmt.Printf("distinct_p:     %d\n", st.DistinctP)
	fmt.Printf("distinct_o:     %d\n", st.DistinctO)
	fmt.Printf("collected_at:   %d\n", st.CollectedAt)
}
