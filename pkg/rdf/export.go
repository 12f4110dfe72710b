package rdf

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ontoforge/ontoforge/pkg/model"
)

// DefaultExportBase is the namespace IRI used when exporting a converted
// ontology back to Turtle.
const DefaultExportBase = "http://ontoforge.dev/ontology#"

var xsdByValue = map[model.ValueType]string{
	model.ValueString:   "xsd:string",
	model.ValueBoolean:  "xsd:boolean",
	model.ValueDateTime: "xsd:dateTime",
	model.ValueBigInt:   "xsd:integer",
	model.ValueDouble:   "xsd:double",
	model.ValueDecimal:  "xsd:decimal",
}

// ExportTurtle writes the conversion result as an OWL ontology in Turtle.
// Entity types become owl:Class, properties owl:DatatypeProperty with their
// owning entities as rdfs:domain, relationships owl:ObjectProperty. The
// class / datatype-property / object-property URI sets survive a re-import.
func ExportTurtle(result *model.ConversionResult, w io.Writer, base string) error {
	if base == "" {
		base = DefaultExportBase
	}

	var b strings.Builder
	b.WriteString("@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .\n")
	b.WriteString("@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .\n")
	b.WriteString("@prefix owl: <http://www.w3.org/2002/07/owl#> .\n")
	b.WriteString("@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .\n")
	fmt.Fprintf(&b, "@prefix : <%s> .\n\n", base)

	nameByID := make(map[string]string, len(result.EntityTypes))
	for _, e := range result.EntityTypes {
		nameByID[e.ID] = e.Name
	}

	for _, e := range result.EntityTypes {
		fmt.Fprintf(&b, ":%s a owl:Class", e.Name)
		if e.BaseEntityTypeID != "" {
			if parent, ok := nameByID[e.BaseEntityTypeID]; ok {
				fmt.Fprintf(&b, " ;\n    rdfs:subClassOf :%s", parent)
			}
		}
		b.WriteString(" .\n")
	}
	b.WriteString("\n")

	// One datatype property per name; every owning entity contributes an
	// rdfs:domain statement, which fans back out on re-import.
	type propDecl struct {
		valueType  model.ValueType
		domains    []string
		timeseries bool
	}
	props := make(map[string]*propDecl)
	var propOrder []string
	for _, e := range result.EntityTypes {
		for _, p := range e.AllProperties() {
			d, ok := props[p.Name]
			if !ok {
				d = &propDecl{valueType: p.ValueType, timeseries: p.Timeseries}
				props[p.Name] = d
				propOrder = append(propOrder, p.Name)
			}
			d.domains = append(d.domains, e.Name)
		}
	}
	for _, name := range propOrder {
		d := props[name]
		fmt.Fprintf(&b, ":%s a owl:DatatypeProperty", name)
		for _, domain := range d.domains {
			fmt.Fprintf(&b, " ;\n    rdfs:domain :%s", domain)
		}
		fmt.Fprintf(&b, " ;\n    rdfs:range %s", xsdByValue[d.valueType])
		if d.timeseries {
			b.WriteString(" ;\n    rdfs:comment \"(timeseries)\"")
		}
		b.WriteString(" .\n")
	}
	b.WriteString("\n")

	for _, r := range result.RelationshipTypes {
		src, okS := nameByID[r.Source.EntityTypeID]
		tgt, okT := nameByID[r.Target.EntityTypeID]
		if !okS || !okT {
			continue
		}
		fmt.Fprintf(&b, ":%s a owl:ObjectProperty ;\n    rdfs:domain :%s ;\n    rdfs:range :%s .\n", r.Name, src, tgt)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Diff is the outcome of comparing two conversion results by name sets.
type Diff struct {
	ClassesOnlyInA       []string `json:"classes_only_in_a"`
	ClassesOnlyInB       []string `json:"classes_only_in_b"`
	DataPropsOnlyInA     []string `json:"data_properties_only_in_a"`
	DataPropsOnlyInB     []string `json:"data_properties_only_in_b"`
	ObjectPropsOnlyInA   []string `json:"object_properties_only_in_a"`
	ObjectPropsOnlyInB   []string `json:"object_properties_only_in_b"`
}

// Equal reports whether the two ontologies cover identical name sets.
func (d *Diff) Equal() bool {
	return len(d.ClassesOnlyInA) == 0 && len(d.ClassesOnlyInB) == 0 &&
		len(d.DataPropsOnlyInA) == 0 && len(d.DataPropsOnlyInB) == 0 &&
		len(d.ObjectPropsOnlyInA) == 0 && len(d.ObjectPropsOnlyInB) == 0
}

// CompareOntologies reports the set differences between two conversion
// results. Names are the comparison identity because URIs are sanitized on
// conversion; properties are qualified by their owning entity.
func CompareOntologies(a, b *model.ConversionResult) *Diff {
	classSet := func(r *model.ConversionResult) map[string]struct{} {
		s := make(map[string]struct{})
		for _, e := range r.EntityTypes {
			s[e.Name] = struct{}{}
		}
		return s
	}
	propSet := func(r *model.ConversionResult) map[string]struct{} {
		s := make(map[string]struct{})
		for _, e := range r.EntityTypes {
			for _, p := range e.AllProperties() {
				s[e.Name+"."+p.Name] = struct{}{}
			}
		}
		return s
	}
	relSet := func(r *model.ConversionResult) map[string]struct{} {
		s := make(map[string]struct{})
		for _, rel := range r.RelationshipTypes {
			s[rel.Name] = struct{}{}
		}
		return s
	}

	d := &Diff{}
	d.ClassesOnlyInA, d.ClassesOnlyInB = setDiff(classSet(a), classSet(b))
	d.DataPropsOnlyInA, d.DataPropsOnlyInB = setDiff(propSet(a), propSet(b))
	d.ObjectPropsOnlyInA, d.ObjectPropsOnlyInB = setDiff(relSet(a), relSet(b))
	return d
}

func setDiff(a, b map[string]struct{}) (onlyA, onlyB []string) {
	for k := range a {
		if _, ok := b[k]; !ok {
			onlyA = append(onlyA, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			onlyB = append(onlyB, k)
		}
	}
	sort.Strings(onlyA)
	sort.Strings(onlyB)
	return onlyA, onlyB
}
