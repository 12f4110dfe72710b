package rdf

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	knakk "github.com/knakk/rdf"
	"github.com/piprate/json-gold/ld"
)

// Parse errors.
var (
	ErrInvalidSyntax     = errors.New("invalid RDF syntax")
	ErrEmptyGraph        = errors.New("graph contains no triples")
	ErrUnsupportedFormat = errors.New("unsupported RDF serialization")
)

// Format tags the concrete serialization.
type Format string

const (
	FormatTurtle   Format = "turtle"
	FormatNTriples Format = "ntriples"
	FormatNQuads   Format = "nquads"
	FormatRDFXML   Format = "rdfxml"
	FormatJSONLD   Format = "jsonld"
	FormatTriG     Format = "trig"
	FormatN3       Format = "n3"
	FormatHTML     Format = "html"
	FormatTriX     Format = "trix"
	FormatHext     Format = "hext"
)

var extFormats = map[string]Format{
	".ttl":    FormatTurtle,
	".rdf":    FormatRDFXML,
	".owl":    FormatRDFXML,
	".xml":    FormatRDFXML,
	".nt":     FormatNTriples,
	".nq":     FormatNQuads,
	".nquads": FormatNQuads,
	".jsonld": FormatJSONLD,
	".trig":   FormatTriG,
	".n3":     FormatN3,
	".html":   FormatHTML,
	".xhtml":  FormatHTML,
	".htm":    FormatHTML,
	".trix":   FormatTriX,
	".hext":   FormatHext,
}

// DetectSerialization picks a format from an explicit hint, then the file
// extension, defaulting to Turtle.
func DetectSerialization(path string, hint string) Format {
	if hint != "" {
		h := Format(strings.ToLower(hint))
		switch h {
		case FormatTurtle, FormatNTriples, FormatNQuads, FormatRDFXML,
			FormatJSONLD, FormatTriG, FormatN3, FormatHTML, FormatTriX, FormatHext:
			return h
		}
	}
	if f, ok := extFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return FormatTurtle
}

// ParseFile loads path into a graph using the detected serialization.
func ParseFile(path string, hint string) (*Graph, error) {
	format := DetectSerialization(path, hint)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseReader(f, format)
}

// ParseReader loads a graph from r in the given serialization.
func ParseReader(r io.Reader, format Format) (*Graph, error) {
	switch format {
	case FormatTurtle, FormatNTriples, FormatRDFXML:
		return decodeTriples(r, knakkFormat(format))
	case FormatTriG, FormatN3:
		// TriG default-graph statements and the common N3 subset are valid
		// Turtle; richer constructs fail with the decoder's syntax error.
		return decodeTriples(r, knakk.Turtle)
	case FormatNQuads:
		return decodeQuads(r)
	case FormatJSONLD:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return parseJSONLD(data)
	case FormatHTML:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return parseEmbeddedJSONLD(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func knakkFormat(f Format) knakk.Format {
	switch f {
	case FormatNTriples:
		return knakk.NTriples
	case FormatRDFXML:
		return knakk.RDFXML
	default:
		return knakk.Turtle
	}
}

func decodeTriples(r io.Reader, f knakk.Format) (*Graph, error) {
	g := NewGraph()
	dec := knakk.NewTripleDecoder(r, f)
	for {
		tr, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSyntax, err)
		}
		g.Add(convertTriple(tr))
	}
	if g.Len() == 0 {
		return nil, ErrEmptyGraph
	}
	return g, nil
}

func decodeQuads(r io.Reader) (*Graph, error) {
	g := NewGraph()
	dec := knakk.NewQuadDecoder(r, knakk.NQuads)
	for {
		q, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSyntax, err)
		}
		// Named-graph membership is irrelevant for schema extraction.
		g.Add(Triple{S: convertTerm(q.Subj), P: convertTerm(q.Pred), O: convertTerm(q.Obj)})
	}
	if g.Len() == 0 {
		return nil, ErrEmptyGraph
	}
	return g, nil
}

func convertTriple(t knakk.Triple) Triple {
	return Triple{S: convertTerm(t.Subj), P: convertTerm(t.Pred), O: convertTerm(t.Obj)}
}

func convertTerm(t knakk.Term) Term {
	switch t.Type() {
	case knakk.TermBlank:
		return Term{Kind: KindBlank, Value: strings.TrimPrefix(t.String(), "_:")}
	case knakk.TermLiteral:
		lit := t.(knakk.Literal)
		return Term{Kind: KindLiteral, Value: lit.String(), Datatype: lit.DataType.String()}
	default:
		return Term{Kind: KindIRI, Value: t.String()}
	}
}

// parseJSONLD expands a JSON-LD document to N-Quads and decodes those.
func parseJSONLD(data []byte) (*Graph, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSyntax, err)
	}
	proc := ld.NewJsonLdProcessor()
	opts := ld.NewJsonLdOptions("")
	opts.Format = "application/n-quads"
	out, err := proc.ToRDF(doc, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSyntax, err)
	}
	nquads, ok := out.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected JSON-LD expansion output", ErrInvalidSyntax)
	}
	if strings.TrimSpace(nquads) == "" {
		return nil, ErrEmptyGraph
	}
	return decodeQuads(strings.NewReader(nquads))
}

var jsonldScriptRe = regexp.MustCompile(`(?is)<script[^>]+type\s*=\s*["']application/ld\+json["'][^>]*>(.*?)</script>`)

// parseEmbeddedJSONLD extracts <script type="application/ld+json"> blocks
// from an HTML document. Attribute-level RDFa is not interpreted.
func parseEmbeddedJSONLD(html []byte) (*Graph, error) {
	matches := jsonldScriptRe.FindAllSubmatch(html, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no embedded JSON-LD found", ErrEmptyGraph)
	}
	g := NewGraph()
	for _, m := range matches {
		sub, err := parseJSONLD(m[1])
		if err != nil {
			if errors.Is(err, ErrEmptyGraph) {
				continue
			}
			return nil, err
		}
		sub.ForEach(g.Add)
	}
	if g.Len() == 0 {
		return nil, ErrEmptyGraph
	}
	return g, nil
}
