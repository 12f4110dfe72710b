package rdf

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ontoforge/ontoforge/pkg/compliance"
	"github.com/ontoforge/ontoforge/pkg/convert"
	"github.com/ontoforge/ontoforge/pkg/model"
)

// DefaultNamespace routes emitted types when none is configured.
const DefaultNamespace = "usr"

// timeseriesMarker routes a data property into the telemetry collection
// when it appears in an rdfs:comment.
const timeseriesMarker = "(timeseries)"

// Converter is the RDF/OWL → intermediate model converter. Instances are
// cheap; all extraction state lives in a per-call struct, so concurrent
// conversions of different inputs are safe.
type Converter struct {
	opts convert.Options
	hint string
}

// New returns an RDF converter. hint optionally forces a serialization.
func New(opts convert.Options, hint string) *Converter {
	return &Converter{opts: opts, hint: hint}
}

// FormatName implements convert.Converter.
func (c *Converter) FormatName() string { return "rdf" }

// Validate runs the full conversion without keeping the output; parse and
// extraction diagnostics are identical either way.
func (c *Converter) Validate(ctx context.Context, path string) (*model.ConversionResult, *compliance.Report, error) {
	return c.Convert(ctx, path)
}

// Convert parses path and extracts entity and relationship types. Inputs
// above the streaming threshold go through the chunked engine.
func (c *Converter) Convert(ctx context.Context, path string) (*model.ConversionResult, *compliance.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	threshold := c.opts.StreamingThresholdBytes
	if threshold == 0 {
		threshold = convert.DefaultStreamingThreshold
	}
	if c.opts.ForceStreaming || (threshold > 0 && fileSize(path) > threshold) {
		return c.convertStreaming(ctx, path)
	}

	g, err := ParseFile(path, c.hint)
	if err != nil {
		return nil, nil, err
	}
	return c.extract(ctx, g)
}

// ConvertGraph extracts an already-parsed graph; the Turtle export
// round-trip uses this.
func (c *Converter) ConvertGraph(ctx context.Context, g *Graph) (*model.ConversionResult, *compliance.Report, error) {
	return c.extract(ctx, g)
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// extraction carries the per-call state; reset for every conversion.
type extraction struct {
	opts     convert.Options
	g        *Graph
	ids      *model.IDGenerator
	resolver *ClassResolver
	result   *model.ConversionResult
	rec      *compliance.Recorder

	entities  map[string]*model.EntityType // class URI → entity
	order     []string                     // class URIs in discovery order
	usedNames map[string]string            // sanitized name → class URI
	namespace string
}

func (c *Converter) extract(ctx context.Context, g *Graph) (*model.ConversionResult, *compliance.Report, error) {
	ex := &extraction{
		opts:      c.opts,
		g:         g,
		ids:       model.NewIDGenerator(c.opts.IDPrefix),
		resolver:  NewClassResolver(g),
		result:    &model.ConversionResult{TripleCount: g.Len()},
		rec:       compliance.NewRecorder("rdf"),
		entities:  make(map[string]*model.EntityType),
		usedNames: make(map[string]string),
		namespace: c.opts.Namespace,
	}
	if ex.namespace == "" {
		ex.namespace = DefaultNamespace
	}

	phases := []struct {
		name string
		run  func()
	}{
		{"class discovery", ex.discoverClasses},
		{"inheritance wiring", ex.wireInheritance},
		{"data property extraction", ex.extractDataProperties},
		{"object property extraction", ex.extractObjectProperties},
		{"identifier assignment", ex.assignIdentifiers},
	}
	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		p.run()
		c.opts.Report(convert.ProgressEvent{Phase: p.name})
	}
	ex.observeUnsupported()

	for _, uri := range ex.order {
		ex.result.EntityTypes = append(ex.result.EntityTypes, ex.entities[uri])
	}
	report := ex.rec.Report(ex.result)
	if c.opts.Strict {
		if err := report.CheckStrict(); err != nil {
			return ex.result, report, err
		}
	}
	return ex.result, report, nil
}

// --- phase 1: class discovery ---

func (ex *extraction) discoverClasses() {
	add := func(t Term) {
		if !t.IsIRI() {
			return
		}
		ex.addClass(t.Value)
	}
	for _, s := range ex.g.Subjects(rdfType, owlClass) {
		add(s)
	}
	for _, s := range ex.g.Subjects(rdfType, rdfsClass) {
		add(s)
	}
	for _, s := range ex.g.SubjectsOf(rdfsSubClassOf) {
		add(s)
	}
}

func (ex *extraction) addClass(uri string) *model.EntityType {
	if e, ok := ex.entities[uri]; ok {
		return e
	}
	e := &model.EntityType{
		ID:            ex.ids.For(uri),
		Name:          ex.uniqueName(model.SanitizeName(model.LocalName(uri)), uri),
		Namespace:     ex.namespace,
		NamespaceType: "Custom",
		Visibility:    "Visible",
		EntityIDParts: []string{},
		SourceURI:     uri,
	}
	ex.entities[uri] = e
	ex.order = append(ex.order, uri)
	ex.rec.Observe("owl:Class", e.Name, uri)
	return e
}

// uniqueName enforces name uniqueness within the namespace by suffixing a
// counter on clashes between distinct source URIs.
func (ex *extraction) uniqueName(name, uri string) string {
	owner, taken := ex.usedNames[name]
	if !taken || owner == uri {
		ex.usedNames[name] = uri
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if _, clash := ex.usedNames[candidate]; !clash {
			ex.usedNames[candidate] = uri
			ex.result.Warn(model.WarnGeneral, "", fmt.Sprintf("name %q already in use; %s renamed to %q", name, uri, candidate), "")
			return candidate
		}
	}
}

// --- phase 2: inheritance wiring ---

func (ex *extraction) wireInheritance() {
	// Wire the first rdfs:subClassOf parent that resolves inside the class
	// set, then detect cycles on the original parent map before cutting.
	parent := make(map[string]string)
	for _, uri := range ex.order {
		for _, obj := range ex.g.Objects(IRI(uri), rdfsSubClassOf) {
			if !obj.IsIRI() {
				continue
			}
			if _, known := ex.entities[obj.Value]; known {
				parent[uri] = obj.Value
				break
			}
		}
	}

	cut := make(map[string]struct{})
	for _, uri := range ex.order {
		visited := map[string]struct{}{}
		node := uri
		for {
			next, ok := parent[node]
			if !ok {
				break
			}
			if _, loop := visited[node]; loop {
				// The walk re-entered the chain. uri is on the cycle only
				// if the walk came back around to it; classes that merely
				// inherit from a cyclic class keep their parent link.
				if node == uri {
					cut[uri] = struct{}{}
				}
				break
			}
			visited[node] = struct{}{}
			node = next
		}
	}

	for _, uri := range ex.order {
		p, ok := parent[uri]
		if !ok {
			continue
		}
		if _, dropped := cut[uri]; dropped {
			ex.result.Warn(model.WarnGeneral, "rdfs:subClassOf",
				fmt.Sprintf("cyclic inheritance detected for %s; parent link dropped", uri), "")
			ex.result.Skip("inheritance", ex.entities[uri].Name, "cycle detected in inheritance chain", uri)
			continue
		}
		ex.entities[uri].BaseEntityTypeID = ex.entities[p].ID
		ex.rec.Observe("rdfs:subClassOf", ex.entities[uri].Name, uri)
	}
}

// --- phase 3: data property extraction ---

func (ex *extraction) extractDataProperties() {
	for _, subj := range ex.dataPropertySubjects() {
		ex.extractDataProperty(subj)
	}
}

// dataPropertySubjects returns owl:DatatypeProperty subjects plus
// rdf:Property subjects whose range is an XSD type, in discovery order.
func (ex *extraction) dataPropertySubjects() []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(t Term) {
		if !t.IsIRI() {
			return
		}
		if _, dup := seen[t.Value]; dup {
			return
		}
		seen[t.Value] = struct{}{}
		out = append(out, t.Value)
	}
	for _, s := range ex.g.Subjects(rdfType, owlDatatypeProperty) {
		add(s)
	}
	for _, s := range ex.g.Subjects(rdfType, rdfProperty) {
		if r, ok := ex.g.Object(s, rdfsRange); ok && r.IsIRI() && isXSD(r.Value) {
			add(s)
		}
	}
	return out
}

func (ex *extraction) extractDataProperty(uri string) {
	subj := IRI(uri)
	name := model.SanitizeName(model.LocalName(uri))

	valueType := ex.propertyValueType(subj, name)
	timeseries := ex.isTimeseries(subj)

	domains := ex.resolveDomains(subj)
	if len(domains) == 0 {
		ex.result.Skip("data property", name, "missing domain", uri)
		return
	}

	attached := 0
	for _, classURI := range domains {
		entity := ex.entities[classURI]
		if entity.PropertyByName(name) != nil {
			ex.result.Warn(model.WarnGeneral, "owl:DatatypeProperty",
				fmt.Sprintf("property %q already present on %s; duplicate declaration ignored", name, entity.Name), "")
			continue
		}
		entity.AddProperty(&model.EntityTypeProperty{
			ID:         ex.ids.For(uri + "|" + classURI),
			Name:       name,
			ValueType:  valueType,
			Timeseries: timeseries,
			SourceURI:  uri,
		})
		attached++
	}
	if attached > 0 {
		ex.rec.Observe("owl:DatatypeProperty", name, uri)
	} else {
		ex.result.Skip("data property", name, "domain or range entity type not found in converted classes", uri)
	}
}

// propertyValueType maps the property range to a Fabric type, resolving
// datatype unions through the most-restrictive-cover rule.
func (ex *extraction) propertyValueType(subj Term, name string) model.ValueType {
	r, ok := ex.g.Object(subj, rdfsRange)
	if !ok {
		return model.ValueString
	}
	if r.IsIRI() {
		if v, mapped := fromXSD(r.Value); mapped {
			return v
		}
		ex.result.Warn(model.WarnGeneral, "rdfs:range",
			fmt.Sprintf("property %q has non-XSD range %s; defaulting to String", name, r.Value), "")
		return model.ValueString
	}
	// Blank range: usually owl:unionOf over datatypes.
	members := ex.resolver.Resolve(r)
	if len(members) == 0 {
		return model.ValueString
	}
	ex.rec.Observe("owl:unionOf", name, subj.Value)
	v, unknown := resolveXSDUnion(members)
	if len(unknown) > 0 {
		ex.result.Warn(model.WarnGeneral, "owl:unionOf",
			fmt.Sprintf("property %q union contains unmappable types %v; using String", name, unknown), "")
	}
	return v
}

func (ex *extraction) isTimeseries(subj Term) bool {
	for _, c := range ex.g.Objects(subj, rdfsComment) {
		if c.IsLiteral() && strings.Contains(strings.ToLower(c.Value), timeseriesMarker) {
			return true
		}
	}
	return false
}

// resolveDomains resolves every rdfs:domain declaration to class URIs known
// to the entity set, fanning union domains out to every member.
func (ex *extraction) resolveDomains(subj Term) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, d := range ex.g.Objects(subj, rdfsDomain) {
		for _, classURI := range ex.resolver.Resolve(d) {
			if _, known := ex.entities[classURI]; !known {
				continue
			}
			if _, dup := seen[classURI]; dup {
				continue
			}
			seen[classURI] = struct{}{}
			out = append(out, classURI)
		}
	}
	return out
}

// --- phase 4: object property extraction ---

func (ex *extraction) extractObjectProperties() {
	for _, subj := range ex.objectPropertySubjects() {
		ex.extractObjectProperty(subj)
	}
}

func (ex *extraction) objectPropertySubjects() []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(t Term) {
		if !t.IsIRI() {
			return
		}
		if _, dup := seen[t.Value]; dup {
			return
		}
		seen[t.Value] = struct{}{}
		out = append(out, t.Value)
	}
	for _, s := range ex.g.Subjects(rdfType, owlObjectProperty) {
		add(s)
	}
	for _, s := range ex.g.Subjects(rdfType, rdfProperty) {
		if r, ok := ex.g.Object(s, rdfsRange); ok && r.IsIRI() && !isXSD(r.Value) {
			add(s)
		}
	}
	return out
}

type endpointPair struct{ domain, rng string }

func (ex *extraction) extractObjectProperty(uri string) {
	subj := IRI(uri)
	name := model.SanitizeName(model.LocalName(uri))

	domains := ex.resolveDomains(subj)
	var ranges []string
	{
		seen := make(map[string]struct{})
		for _, r := range ex.g.Objects(subj, rdfsRange) {
			for _, classURI := range ex.resolver.Resolve(r) {
				if _, known := ex.entities[classURI]; !known {
					continue
				}
				if _, dup := seen[classURI]; dup {
					continue
				}
				seen[classURI] = struct{}{}
				ranges = append(ranges, classURI)
			}
		}
	}

	declared := len(ex.g.Objects(subj, rdfsDomain)) > 0 || len(ex.g.Objects(subj, rdfsRange)) > 0

	var pairs []endpointPair
	inferred := false
	for _, d := range domains {
		for _, r := range ranges {
			pairs = append(pairs, endpointPair{domain: d, rng: r})
		}
	}
	if len(pairs) == 0 && ex.opts.LooseInference {
		if p, ok := ex.inferEndpoints(subj); ok {
			pairs = append(pairs, p)
			inferred = true
		}
	}
	if len(pairs) == 0 {
		reason := "missing domain and/or range"
		if declared {
			reason = "domain or range entity type not found in converted classes"
		}
		ex.result.Skip("object property", name, reason, uri)
		return
	}

	for _, p := range pairs {
		relName := name
		if len(pairs) > 1 {
			relName = fmt.Sprintf("%s_%s_%s", name, ex.entities[p.domain].Name, ex.entities[p.rng].Name)
		}
		rel := &model.RelationshipType{
			ID:            ex.ids.For(uri + "|" + p.domain + "|" + p.rng),
			Name:          relName,
			Source:        model.RelationshipEnd{EntityTypeID: ex.entities[p.domain].ID},
			Target:        model.RelationshipEnd{EntityTypeID: ex.entities[p.rng].ID},
			Namespace:     ex.namespace,
			NamespaceType: "Custom",
			Inferred:      inferred,
			SourceURI:     uri,
		}
		ex.result.RelationshipTypes = append(ex.result.RelationshipTypes, rel)
	}
	if inferred {
		ex.result.Warn(model.WarnGeneral, "owl:ObjectProperty",
			fmt.Sprintf("relationship %q endpoints inferred from instance usage", name), "")
	}
	ex.rec.Observe("owl:ObjectProperty", name, uri)
}

// inferEndpoints scans instance usage of the predicate and picks the most
// common subject and object classes. Opt-in: this blurs schema and data.
func (ex *extraction) inferEndpoints(pred Term) (endpointPair, bool) {
	subjCount := make(map[string]int)
	objCount := make(map[string]int)
	for _, t := range ex.g.WithPredicate(pred) {
		for _, cls := range ex.typesOf(t.S) {
			subjCount[cls]++
		}
		for _, cls := range ex.typesOf(t.O) {
			objCount[cls]++
		}
	}
	d, ok1 := mostCommon(subjCount)
	r, ok2 := mostCommon(objCount)
	if !ok1 || !ok2 {
		return endpointPair{}, false
	}
	return endpointPair{domain: d, rng: r}, true
}

func (ex *extraction) typesOf(t Term) []string {
	var out []string
	for _, typ := range ex.g.Objects(t, rdfType) {
		if typ.IsIRI() {
			if _, known := ex.entities[typ.Value]; known {
				out = append(out, typ.Value)
			}
		}
	}
	return out
}

func mostCommon(counts map[string]int) (string, bool) {
	best, bestN := "", 0
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic tie-break
	for _, k := range keys {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best, bestN > 0
}

// --- phase 5: identifier assignment ---

func (ex *extraction) assignIdentifiers() {
	for _, uri := range ex.order {
		model.AssignIdentifiers(ex.entities[uri])
	}
}

// --- graph-level compliance observations ---

func (ex *extraction) observeUnsupported() {
	typeObservations := []struct {
		class Term
		tag   string
	}{
		{owlRestriction, "owl:Restriction"},
		{owlFunctionalProp, "owl:FunctionalProperty"},
		{owlTransitiveProp, "owl:TransitiveProperty"},
		{owlSymmetricProp, "owl:SymmetricProperty"},
	}
	for _, obs := range typeObservations {
		for _, s := range ex.g.Subjects(rdfType, obs.class) {
			ex.rec.Observe(obs.tag, model.LocalName(s.Value), s.Value)
		}
	}
	predObservations := []struct {
		pred Term
		tag  string
	}{
		{owlInverseOf, "owl:inverseOf"},
		{owlEquivalentClass, "owl:equivalentClass"},
		{owlImports, "owl:imports"},
	}
	for _, obs := range predObservations {
		for _, t := range ex.g.WithPredicate(obs.pred) {
			name := ""
			if t.S.IsIRI() {
				name = model.LocalName(t.S.Value)
			}
			ex.rec.Observe(obs.tag, name, t.S.Value)
		}
	}
}
