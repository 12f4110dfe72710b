// Package rdf parses RDF/OWL ontologies and extracts them into the
// intermediate model. Parsing of the concrete serializations is delegated to
// github.com/knakk/rdf (Turtle, N-Triples, N-Quads, RDF/XML) and
// github.com/piprate/json-gold (JSON-LD); extraction operates on an indexed
// in-memory graph of plain terms so the rest of the package is independent
// of the decoder library.
package rdf

// TermKind discriminates graph terms.
type TermKind int

const (
	KindIRI TermKind = iota
	KindBlank
	KindLiteral
)

// Term is a graph node: IRI, blank node, or literal.
type Term struct {
	Kind     TermKind
	Value    string // IRI string, blank node label, or literal lexical form
	Datatype string // literal datatype IRI, empty otherwise
}

// IRI builds an IRI term.
func IRI(v string) Term { return Term{Kind: KindIRI, Value: v} }

// IsIRI reports whether the term is an IRI.
func (t Term) IsIRI() bool { return t.Kind == KindIRI }

// IsBlank reports whether the term is a blank node.
func (t Term) IsBlank() bool { return t.Kind == KindBlank }

// IsLiteral reports whether the term is a literal.
func (t Term) IsLiteral() bool { return t.Kind == KindLiteral }

// Key is a unique map key for the term within one graph.
func (t Term) Key() string {
	switch t.Kind {
	case KindBlank:
		return "_:" + t.Value
	case KindLiteral:
		return "\"" + t.Value + "\"^^" + t.Datatype
	default:
		return "<" + t.Value + ">"
	}
}

// Triple is a single statement.
type Triple struct {
	S, P, O Term
}

// Graph is an indexed triple store sized for schema documents: every triple
// is kept, with subject and predicate indexes for the extraction passes.
type Graph struct {
	triples []Triple
	bySubj  map[string][]int
	byPred  map[string][]int
	bySP    map[string][]int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		bySubj: make(map[string][]int),
		byPred: make(map[string][]int),
		bySP:   make(map[string][]int),
	}
}

// Add appends a triple.
func (g *Graph) Add(t Triple) {
	i := len(g.triples)
	g.triples = append(g.triples, t)
	sk := t.S.Key()
	pk := t.P.Key()
	g.bySubj[sk] = append(g.bySubj[sk], i)
	g.byPred[pk] = append(g.byPred[pk], i)
	g.bySP[sk+" "+pk] = append(g.bySP[sk+" "+pk], i)
}

// Len is the triple count.
func (g *Graph) Len() int { return len(g.triples) }

// HasSubject reports whether any triple carries this subject.
func (g *Graph) HasSubject(t Term) bool {
	_, ok := g.bySubj[t.Key()]
	return ok
}

// Objects returns all objects of (subj, pred, ?).
func (g *Graph) Objects(subj, pred Term) []Term {
	idx := g.bySP[subj.Key()+" "+pred.Key()]
	out := make([]Term, 0, len(idx))
	for _, i := range idx {
		out = append(out, g.triples[i].O)
	}
	return out
}

// Object returns the first object of (subj, pred, ?), if any.
func (g *Graph) Object(subj, pred Term) (Term, bool) {
	idx := g.bySP[subj.Key()+" "+pred.Key()]
	if len(idx) == 0 {
		return Term{}, false
	}
	return g.triples[idx[0]].O, true
}

// Subjects returns all distinct subjects of (?, pred, obj).
func (g *Graph) Subjects(pred, obj Term) []Term {
	var out []Term
	seen := make(map[string]struct{})
	for _, i := range g.byPred[pred.Key()] {
		t := g.triples[i]
		if t.O != obj {
			continue
		}
		if _, dup := seen[t.S.Key()]; dup {
			continue
		}
		seen[t.S.Key()] = struct{}{}
		out = append(out, t.S)
	}
	return out
}

// SubjectsOf returns all distinct subjects carrying pred at all.
func (g *Graph) SubjectsOf(pred Term) []Term {
	var out []Term
	seen := make(map[string]struct{})
	for _, i := range g.byPred[pred.Key()] {
		t := g.triples[i]
		if _, dup := seen[t.S.Key()]; dup {
			continue
		}
		seen[t.S.Key()] = struct{}{}
		out = append(out, t.S)
	}
	return out
}

// WithPredicate returns all triples carrying pred.
func (g *Graph) WithPredicate(pred Term) []Triple {
	idx := g.byPred[pred.Key()]
	out := make([]Triple, 0, len(idx))
	for _, i := range idx {
		out = append(out, g.triples[i])
	}
	return out
}

// ForEach visits every triple in insertion order.
func (g *Graph) ForEach(fn func(Triple)) {
	for _, t := range g.triples {
		fn(t)
	}
}

// Well-known vocabulary terms.
var (
	rdfType     = IRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")
	rdfProperty = IRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#Property")
	rdfFirst    = IRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#first")
	rdfRest     = IRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#rest")
	rdfNil      = IRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#nil")

	rdfsClass      = IRI("http://www.w3.org/2000/01/rdf-schema#Class")
	rdfsSubClassOf = IRI("http://www.w3.org/2000/01/rdf-schema#subClassOf")
	rdfsDomain     = IRI("http://www.w3.org/2000/01/rdf-schema#domain")
	rdfsRange      = IRI("http://www.w3.org/2000/01/rdf-schema#range")
	rdfsComment    = IRI("http://www.w3.org/2000/01/rdf-schema#comment")
	rdfsLabel      = IRI("http://www.w3.org/2000/01/rdf-schema#label")

	owlClass            = IRI("http://www.w3.org/2002/07/owl#Class")
	owlDatatypeProperty = IRI("http://www.w3.org/2002/07/owl#DatatypeProperty")
	owlObjectProperty   = IRI("http://www.w3.org/2002/07/owl#ObjectProperty")
	owlFunctionalProp   = IRI("http://www.w3.org/2002/07/owl#FunctionalProperty")
	owlTransitiveProp   = IRI("http://www.w3.org/2002/07/owl#TransitiveProperty")
	owlSymmetricProp    = IRI("http://www.w3.org/2002/07/owl#SymmetricProperty")
	owlInverseOf        = IRI("http://www.w3.org/2002/07/owl#inverseOf")
	owlEquivalentClass  = IRI("http://www.w3.org/2002/07/owl#equivalentClass")
	owlImports          = IRI("http://www.w3.org/2002/07/owl#imports")
	owlRestriction      = IRI("http://www.w3.org/2002/07/owl#Restriction")
	owlUnionOf          = IRI("http://www.w3.org/2002/07/owl#unionOf")
	owlIntersectionOf   = IRI("http://www.w3.org/2002/07/owl#intersectionOf")
	owlComplementOf     = IRI("http://www.w3.org/2002/07/owl#complementOf")
	owlOneOf            = IRI("http://www.w3.org/2002/07/owl#oneOf")
	owlOnClass          = IRI("http://www.w3.org/2002/07/owl#onClass")
	owlSomeValuesFrom   = IRI("http://www.w3.org/2002/07/owl#someValuesFrom")
	owlAllValuesFrom    = IRI("http://www.w3.org/2002/07/owl#allValuesFrom")
	owlOnDataRange      = IRI("http://www.w3.org/2002/07/owl#onDataRange")
)
