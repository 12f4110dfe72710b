package rdf

// maxResolveDepth caps ClassResolver recursion over nested class
// expressions.
const maxResolveDepth = 10

// ClassResolver resolves a node to the class URIs it denotes, walking
// owl:unionOf / owl:intersectionOf / owl:complementOf / owl:oneOf lists and
// nested restrictions (owl:onClass, owl:someValuesFrom, owl:allValuesFrom)
// to arbitrary nesting. A visited set breaks cycles between blank nodes, and
// RDF list traversal is iterative with its own cycle detection so a
// malformed rdf:rest loop cannot recurse or spin.
type ClassResolver struct {
	g *Graph
}

// NewClassResolver builds a resolver over g.
func NewClassResolver(g *Graph) *ClassResolver {
	return &ClassResolver{g: g}
}

// Resolve returns the class URIs node denotes, deduplicated in discovery
// order. An IRI resolves to itself.
func (r *ClassResolver) Resolve(node Term) []string {
	seen := make(map[string]struct{})
	visited := make(map[string]struct{})
	var out []string
	r.resolve(node, 0, visited, seen, &out)
	return out
}

func (r *ClassResolver) resolve(node Term, depth int, visited, seen map[string]struct{}, out *[]string) {
	if depth > maxResolveDepth {
		return
	}
	key := node.Key()
	if _, done := visited[key]; done {
		return
	}
	visited[key] = struct{}{}

	if node.IsIRI() {
		if _, dup := seen[node.Value]; !dup {
			seen[node.Value] = struct{}{}
			*out = append(*out, node.Value)
		}
		return
	}
	if !node.IsBlank() {
		return
	}

	for _, listPred := range []Term{owlUnionOf, owlIntersectionOf, owlOneOf} {
		if list, ok := r.g.Object(node, listPred); ok {
			for _, member := range r.list(list) {
				r.resolve(member, depth+1, visited, seen, out)
			}
		}
	}
	if complement, ok := r.g.Object(node, owlComplementOf); ok {
		r.resolve(complement, depth+1, visited, seen, out)
	}
	for _, pred := range []Term{owlOnClass, owlSomeValuesFrom, owlAllValuesFrom, owlOnDataRange} {
		if v, ok := r.g.Object(node, pred); ok {
			r.resolve(v, depth+1, visited, seen, out)
		}
	}
}

// list walks an rdf:first/rdf:rest chain iteratively, stopping at rdf:nil,
// a dangling tail, or a revisited node.
func (r *ClassResolver) list(head Term) []Term {
	var members []Term
	visited := make(map[string]struct{})
	node := head
	for {
		if node == rdfNil || !node.IsBlank() && !node.IsIRI() {
			return members
		}
		key := node.Key()
		if _, loop := visited[key]; loop {
			return members
		}
		visited[key] = struct{}{}

		if first, ok := r.g.Object(node, rdfFirst); ok {
			members = append(members, first)
		}
		rest, ok := r.g.Object(node, rdfRest)
		if !ok {
			return members
		}
		node = rest
	}
}
