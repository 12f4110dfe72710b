// Package compliance labels every source construct encountered during a
// conversion as preserved, converted-with-limitations, or lost. Extractors
// record observations additively; the report is computed once from the
// accumulated set.
package compliance

// Level is the support bucket for a source construct.
type Level string

const (
	// Full means preserved with identical semantics.
	Full Level = "full"
	// Partial means converted with known loss.
	Partial Level = "partial"
	// Metadata means only descriptive metadata survives.
	Metadata Level = "metadata"
	// None means the construct cannot be represented.
	None Level = "none"
)

// Support describes how a construct fares in conversion.
type Support struct {
	Level      Level
	Workaround string
}

// rdfSupport is the static table for RDF/OWL constructs.
var rdfSupport = map[string]Support{
	"owl:Class":              {Level: Full},
	"rdfs:Class":             {Level: Full},
	"owl:DatatypeProperty":   {Level: Full},
	"owl:ObjectProperty":     {Level: Full},
	"rdfs:subClassOf":        {Level: Full},
	"rdfs:label":             {Level: Full},
	"rdfs:comment":           {Level: Metadata, Workaround: "comments survive only as conversion metadata"},
	"owl:unionOf":            {Level: Partial, Workaround: "union domains fan out to every member class"},
	"owl:Restriction":        {Level: None, Workaround: "enforce cardinality and value constraints in the consuming application"},
	"owl:FunctionalProperty": {Level: None, Workaround: "enforce single-valuedness at write time"},
	"owl:TransitiveProperty": {Level: None, Workaround: "materialize transitive closures before conversion"},
	"owl:SymmetricProperty":  {Level: None, Workaround: "create the inverse relationship explicitly"},
	"owl:inverseOf":          {Level: None, Workaround: "create both directed relationship types"},
	"owl:equivalentClass":    {Level: Metadata, Workaround: "merge equivalent classes before conversion"},
	"owl:imports":            {Level: None, Workaround: "merge imported ontologies into one input file"},
	"owl:oneOf":              {Level: None, Workaround: "model enumerations as String properties"},
}

// dtdlSupport is the static table for DTDL features.
var dtdlSupport = map[string]Support{
	"Property":      {Level: Full},
	"Relationship":  {Level: Full},
	"Telemetry":     {Level: Partial, Workaround: "telemetry becomes a timeseries property; write semantics are lost"},
	"Command":       {Level: None, Workaround: "expose commands through a separate API surface"},
	"Component":     {Level: Partial, Workaround: "components are flattened or reduced to a reference property"},
	"Interface":     {Level: Full},
	"ComplexSchema": {Level: Partial, Workaround: "Object/Array/Map/Enum collapse to JSON-encoded String"},
}

// cdmSupport is the static table for CDM constructs.
var cdmSupport = map[string]Support{
	"entity":          {Level: Full},
	"attribute":       {Level: Full},
	"relationship":    {Level: Full},
	"entityReference": {Level: Partial, Workaround: "entity-typed attributes are promoted to relationships, not properties"},
	"trait":           {Level: Metadata, Workaround: "only identity/display/verb-phrase traits are interpreted"},
	"importDocument":  {Level: Metadata},
}

// DTDL limits enforced during validation.
const (
	DTDLMaxNameLength    = 512
	DTDLMaxDescription   = 512
	DTDLMaxExtends       = 2
	DTDLMaxExtendsDepth  = 12
	DTDLMaxHierarchySize = 1024
	DTDLMaxContents      = 100000
	DTDLMaxSchemaDepth   = 8
)

// Lookup returns the support entry for a construct in the given source
// dialect ("rdf", "dtdl", "cdm"). Unknown constructs default to Full so
// novel-but-convertible shapes do not spam the report.
func Lookup(dialect, construct string) Support {
	var table map[string]Support
	switch dialect {
	case "rdf":
		table = rdfSupport
	case "dtdl":
		table = dtdlSupport
	case "cdm":
		table = cdmSupport
	default:
		return Support{Level: Full}
	}
	if s, ok := table[construct]; ok {
		return s
	}
	return Support{Level: Full}
}
