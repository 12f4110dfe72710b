package rdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ontoforge/ontoforge/pkg/convert"
	"github.com/ontoforge/ontoforge/pkg/model"
)

const hrOntology = `
@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix owl: <http://www.w3.org/2002/07/owl#> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .
@prefix ex: <http://example.org/hr#> .

ex:Person a owl:Class .
ex:Organization a owl:Class .

ex:name a owl:DatatypeProperty ;
    rdfs:domain ex:Person ;
    rdfs:range xsd:string .

ex:age a owl:DatatypeProperty ;
    rdfs:domain ex:Person ;
    rdfs:range xsd:integer .

ex:worksFor a owl:ObjectProperty ;
    rdfs:domain ex:Person ;
    rdfs:range ex:Organization .
`

func parseTurtle(t *testing.T, doc string) *Graph {
	t.Helper()
	g, err := ParseReader(strings.NewReader(doc), FormatTurtle)
	require.NoError(t, err)
	return g
}

func convertTurtle(t *testing.T, doc string, opts convert.Options) *model.ConversionResult {
	t.Helper()
	c := New(opts, "")
	result, _, err := c.ConvertGraph(context.Background(), parseTurtle(t, doc))
	require.NoError(t, err)
	return result
}

func TestConvert_SimpleOntology(t *testing.T) {
	result := convertTurtle(t, hrOntology, convert.Options{})

	require.Len(t, result.EntityTypes, 2)
	require.Len(t, result.RelationshipTypes, 1)
	require.Empty(t, result.SkippedItems)
	require.InDelta(t, 100.0, result.SuccessRate(), 0.001)

	person := result.EntityByName("Person")
	require.NotNil(t, person)
	require.Len(t, person.Properties, 2)
	require.Equal(t, model.ValueString, person.PropertyByName("name").ValueType)
	require.Equal(t, model.ValueBigInt, person.PropertyByName("age").ValueType)

	org := result.EntityByName("Organization")
	require.NotNil(t, org)
	require.Empty(t, org.Properties)

	rel := result.RelationshipTypes[0]
	require.Equal(t, "worksFor", rel.Name)
	require.Equal(t, person.ID, rel.Source.EntityTypeID)
	require.Equal(t, org.ID, rel.Target.EntityTypeID)

	// Identifier assignment: first String/BigInt property keys the entity,
	// and the "name" property is the display name.
	require.Equal(t, []string{person.PropertyByName("name").ID}, person.EntityIDParts)
	require.Equal(t, person.PropertyByName("name").ID, person.DisplayNamePropertyID)
}

func TestConvert_Idempotent(t *testing.T) {
	a := convertTurtle(t, hrOntology, convert.Options{})
	b := convertTurtle(t, hrOntology, convert.Options{})
	require.Equal(t, a.EntityTypes[0].ID, b.EntityTypes[0].ID)
	require.Equal(t, a.RelationshipTypes[0].ID, b.RelationshipTypes[0].ID)
}

func TestConvert_InheritanceCycle(t *testing.T) {
	doc := `
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix ex: <http://example.org/c#> .

ex:A rdfs:subClassOf ex:B .
ex:B rdfs:subClassOf ex:C .
ex:C rdfs:subClassOf ex:A .
`
	result := convertTurtle(t, doc, convert.Options{})
	require.Len(t, result.EntityTypes, 3)
	for _, e := range result.EntityTypes {
		require.Empty(t, e.BaseEntityTypeID, e.Name)
	}

	cyclic := 0
	for _, w := range result.Warnings {
		if strings.Contains(w.Message, "cyclic inheritance detected") {
			cyclic++
		}
	}
	require.Equal(t, 3, cyclic)
	// A skip record exists for every removed edge.
	require.Len(t, result.SkippedItems, 3)
	for _, s := range result.SkippedItems {
		require.Equal(t, "cycle detected in inheritance chain", s.Reason)
	}
}

func TestConvert_InheritKeepsParentBelowCycle(t *testing.T) {
	doc := `
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix ex: <http://example.org/c#> .

ex:A rdfs:subClassOf ex:B .
ex:B rdfs:subClassOf ex:A .
ex:D rdfs:subClassOf ex:A .
`
	result := convertTurtle(t, doc, convert.Options{})
	d := result.EntityByName("D")
	require.NotNil(t, d)
	require.Equal(t, result.EntityByName("A").ID, d.BaseEntityTypeID)
	require.Empty(t, result.EntityByName("A").BaseEntityTypeID)
	require.Empty(t, result.EntityByName("B").BaseEntityTypeID)
}

func TestConvert_UnionDomainFansOut(t *testing.T) {
	doc := `
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix owl: <http://www.w3.org/2002/07/owl#> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .
@prefix ex: <http://example.org/u#> .

ex:Person a owl:Class .
ex:Organization a owl:Class .

ex:name a owl:DatatypeProperty ;
    rdfs:domain [ owl:unionOf ( ex:Person ex:Organization ) ] ;
    rdfs:range xsd:string .
`
	result := convertTurtle(t, doc, convert.Options{})
	person := result.EntityByName("Person")
	org := result.EntityByName("Organization")
	require.NotNil(t, person.PropertyByName("name"))
	require.NotNil(t, org.PropertyByName("name"))
	require.NotEqual(t, person.PropertyByName("name").ID, org.PropertyByName("name").ID)
}

func TestConvert_TimeseriesComment(t *testing.T) {
	doc := `
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix owl: <http://www.w3.org/2002/07/owl#> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .
@prefix ex: <http://example.org/ts#> .

ex:Sensor a owl:Class .
ex:temperature a owl:DatatypeProperty ;
    rdfs:domain ex:Sensor ;
    rdfs:range xsd:double ;
    rdfs:comment "Live reading (timeseries)" .
`
	result := convertTurtle(t, doc, convert.Options{})
	sensor := result.EntityByName("Sensor")
	require.Empty(t, sensor.Properties)
	require.Len(t, sensor.TimeseriesProperties, 1)
	require.Equal(t, model.ValueDouble, sensor.TimeseriesProperties[0].ValueType)
}

func TestConvert_ObjectPropertyMissingEndpoints(t *testing.T) {
	doc := `
@prefix owl: <http://www.w3.org/2002/07/owl#> .
@prefix ex: <http://example.org/m#> .

ex:Thing a owl:Class .
ex:relatesTo a owl:ObjectProperty .
`
	result := convertTurtle(t, doc, convert.Options{})
	require.Empty(t, result.RelationshipTypes)
	require.Len(t, result.SkippedItems, 1)
	require.Equal(t, "missing domain and/or range", result.SkippedItems[0].Reason)
}

func TestConvert_LooseInference(t *testing.T) {
	doc := `
@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .
@prefix owl: <http://www.w3.org/2002/07/owl#> .
@prefix ex: <http://example.org/i#> .

ex:Person a owl:Class .
ex:City a owl:Class .
ex:livesIn a owl:ObjectProperty .

ex:alice rdf:type ex:Person .
ex:berlin rdf:type ex:City .
ex:alice ex:livesIn ex:berlin .
`
	// Off by default: skipped.
	result := convertTurtle(t, doc, convert.Options{})
	require.Empty(t, result.RelationshipTypes)

	// Opted in: endpoints inferred from usage and flagged.
	result = convertTurtle(t, doc, convert.Options{LooseInference: true})
	require.Len(t, result.RelationshipTypes, 1)
	rel := result.RelationshipTypes[0]
	require.True(t, rel.Inferred)
	require.Equal(t, result.EntityByName("Person").ID, rel.Source.EntityTypeID)
	require.Equal(t, result.EntityByName("City").ID, rel.Target.EntityTypeID)
}

func TestConvert_UnionRange(t *testing.T) {
	doc := `
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix owl: <http://www.w3.org/2002/07/owl#> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .
@prefix ex: <http://example.org/r#> .

ex:Reading a owl:Class .
ex:value a owl:DatatypeProperty ;
    rdfs:domain ex:Reading ;
    rdfs:range [ owl:unionOf ( xsd:integer xsd:double ) ] .
`
	result := convertTurtle(t, doc, convert.Options{})
	require.Equal(t, model.ValueDouble, result.EntityByName("Reading").PropertyByName("value").ValueType)
}

func TestParse_Errors(t *testing.T) {
	_, err := ParseReader(strings.NewReader("this is not turtle @@"), FormatTurtle)
	require.ErrorIs(t, err, ErrInvalidSyntax)

	_, err = ParseReader(strings.NewReader(""), FormatTurtle)
	require.ErrorIs(t, err, ErrEmptyGraph)

	_, err = ParseReader(strings.NewReader("x"), FormatTriX)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDetectSerialization(t *testing.T) {
	require.Equal(t, FormatTurtle, DetectSerialization("x.ttl", ""))
	require.Equal(t, FormatRDFXML, DetectSerialization("x.owl", ""))
	require.Equal(t, FormatNQuads, DetectSerialization("x.nq", ""))
	require.Equal(t, FormatJSONLD, DetectSerialization("x.jsonld", ""))
	require.Equal(t, FormatTurtle, DetectSerialization("x.unknown", ""))
	// Explicit hint wins over extension.
	require.Equal(t, FormatNTriples, DetectSerialization("x.ttl", "ntriples"))
}

func TestClassResolver_NestedUnion(t *testing.T) {
	g := NewGraph()
	blank := func(v string) Term { return Term{Kind: KindBlank, Value: v} }
	// _:u owl:unionOf (ex:A _:v) ; _:v owl:unionOf (ex:B)
	g.Add(Triple{S: blank("u"), P: owlUnionOf, O: blank("l1")})
	g.Add(Triple{S: blank("l1"), P: rdfFirst, O: IRI("http://x/A")})
	g.Add(Triple{S: blank("l1"), P: rdfRest, O: blank("l2")})
	g.Add(Triple{S: blank("l2"), P: rdfFirst, O: blank("v")})
	g.Add(Triple{S: blank("l2"), P: rdfRest, O: rdfNil})
	g.Add(Triple{S: blank("v"), P: owlUnionOf, O: blank("l3")})
	g.Add(Triple{S: blank("l3"), P: rdfFirst, O: IRI("http://x/B")})
	g.Add(Triple{S: blank("l3"), P: rdfRest, O: rdfNil})

	got := NewClassResolver(g).Resolve(blank("u"))
	require.Equal(t, []string{"http://x/A", "http://x/B"}, got)
}

func TestClassResolver_ListCycle(t *testing.T) {
	g := NewGraph()
	blank := func(v string) Term { return Term{Kind: KindBlank, Value: v} }
	// Malformed list whose rdf:rest loops back on itself.
	g.Add(Triple{S: blank("u"), P: owlUnionOf, O: blank("l1")})
	g.Add(Triple{S: blank("l1"), P: rdfFirst, O: IRI("http://x/A")})
	g.Add(Triple{S: blank("l1"), P: rdfRest, O: blank("l2")})
	g.Add(Triple{S: blank("l2"), P: rdfFirst, O: IRI("http://x/B")})
	g.Add(Triple{S: blank("l2"), P: rdfRest, O: blank("l1")})

	got := NewClassResolver(g).Resolve(blank("u"))
	require.Equal(t, []string{"http://x/A", "http://x/B"}, got)
}

func TestClassResolver_DepthCap(t *testing.T) {
	g := NewGraph()
	blank := func(v string) Term { return Term{Kind: KindBlank, Value: v} }
	// A chain of someValuesFrom nesting deeper than the cap.
	prev := blank("n0")
	for i := 1; i <= 15; i++ {
		next := blank(strings.Repeat("n", i+1))
		g.Add(Triple{S: prev, P: owlSomeValuesFrom, O: next})
		prev = next
	}
	g.Add(Triple{S: prev, P: owlSomeValuesFrom, O: IRI("http://x/Deep")})

	got := NewClassResolver(g).Resolve(blank("n0"))
	require.Empty(t, got)
}

func TestStreaming_MatchesInMemory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hr.ttl")
	require.NoError(t, os.WriteFile(path, []byte(hrOntology), 0o600))

	var events []convert.ProgressEvent
	streamed, _, err := New(convert.Options{
		ForceStreaming: true,
		ChunkSize:      2,
		Progress:       func(ev convert.ProgressEvent) { events = append(events, ev) },
	}, "").Convert(context.Background(), path)
	require.NoError(t, err)

	inMemory := convertTurtle(t, hrOntology, convert.Options{})

	require.True(t, CompareOntologies(streamed, inMemory).Equal())
	require.Equal(t, inMemory.TripleCount, streamed.TripleCount)
	require.NotEmpty(t, events)

	phases := map[string]bool{}
	for _, ev := range events {
		phases[ev.Phase] = true
	}
	require.True(t, phases["class discovery"])
	require.True(t, phases["property batching"])
	require.True(t, phases["identifier assignment"])
}

func TestStreaming_Cancellation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hr.ttl")
	require.NoError(t, os.WriteFile(path, []byte(hrOntology), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := New(convert.Options{ForceStreaming: true, ChunkSize: 1}, "").Convert(ctx, path)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStreaming_SkeletonBoundedByInstanceData(t *testing.T) {
	writeInstanceHeavy := func(n int) string {
		var b strings.Builder
		b.WriteString(hrOntology)
		b.WriteString("ex:Person rdfs:label \"Person\" ; rdfs:comment \"An employee\" .\n")
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "ex:row%d a ex:Person ; rdfs:label \"row %d\" ; rdfs:comment \"instance\" .\n", i, i)
		}
		path := filepath.Join(t.TempDir(), fmt.Sprintf("inst%d.ttl", n))
		require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
		return path
	}

	c := New(convert.Options{ForceStreaming: true, ChunkSize: 64}, "")
	small, smallTotal, err := c.scanSkeleton(context.Background(), writeInstanceHeavy(10), FormatTurtle, 64)
	require.NoError(t, err)
	large, largeTotal, err := c.scanSkeleton(context.Background(), writeInstanceHeavy(500), FormatTurtle, 64)
	require.NoError(t, err)

	// The skeleton must not grow with the instance count.
	require.Greater(t, largeTotal, smallTotal)
	require.Equal(t, small.Len(), large.Len())

	// Schema annotations survive; instance subjects and their annotations
	// are dropped entirely.
	person := IRI("http://example.org/hr#Person")
	label, ok := large.Object(person, rdfsLabel)
	require.True(t, ok)
	require.Equal(t, "Person", label.Value)
	require.False(t, large.HasSubject(IRI("http://example.org/hr#row0")))

	// The instance-heavy file still converts to the same two classes.
	result, _, err := c.Convert(context.Background(), writeInstanceHeavy(200))
	require.NoError(t, err)
	require.Len(t, result.EntityTypes, 2)
	require.Len(t, result.RelationshipTypes, 1)
}

func TestExportTurtle_RoundTrip(t *testing.T) {
	original := convertTurtle(t, hrOntology, convert.Options{})

	var out strings.Builder
	require.NoError(t, ExportTurtle(original, &out, ""))

	reimported, _, err := New(convert.Options{}, "").ConvertGraph(context.Background(), parseTurtle(t, out.String()))
	require.NoError(t, err)

	diff := CompareOntologies(original, reimported)
	require.True(t, diff.Equal(), "diff: %+v", diff)
}

func TestCompareOntologies_ReportsDifferences(t *testing.T) {
	a := convertTurtle(t, hrOntology, convert.Options{})
	b := convertTurtle(t, `
@prefix owl: <http://www.w3.org/2002/07/owl#> .
@prefix ex: <http://example.org/hr#> .
ex:Person a owl:Class .
`, convert.Options{})

	diff := CompareOntologies(a, b)
	require.False(t, diff.Equal())
	require.Contains(t, diff.ClassesOnlyInA, "Organization")
	require.Empty(t, diff.ClassesOnlyInB)
}

func TestParseJSONLD(t *testing.T) {
	doc := `{
  "@context": {"ex": "http://example.org/hr#", "owl": "http://www.w3.org/2002/07/owl#"},
  "@id": "ex:Person",
  "@type": "owl:Class"
}`
	g, err := ParseReader(strings.NewReader(doc), FormatJSONLD)
	require.NoError(t, err)
	require.Equal(t, 1, g.Len())
}
