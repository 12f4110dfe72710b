// Package model defines the format-agnostic intermediate ontology model.
// All three source extractors (RDF, DTDL, CDM) converge on these types;
// everything downstream (compliance, limits, serialization, upload) operates
// on them and knows nothing about source formats.
package model

// ValueType is a Fabric property value type.
type ValueType string

const (
	ValueString   ValueType = "String"
	ValueBoolean  ValueType = "Boolean"
	ValueDateTime ValueType = "DateTime"
	ValueBigInt   ValueType = "BigInt"
	ValueDouble   ValueType = "Double"
	ValueDecimal  ValueType = "Decimal"
)

// KeyCompatible reports whether the type may participate in entityIdParts.
func (v ValueType) KeyCompatible() bool {
	return v == ValueString || v == ValueBigInt
}

// EntityTypeProperty is a single property on an entity type.
type EntityTypeProperty struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ValueType ValueType `json:"valueType"`
	// Redefines points at an inherited property overridden by this one.
	Redefines string `json:"redefines,omitempty"`

	// Timeseries routes the property into the telemetry collection on the
	// owning entity. Not part of the wire shape.
	Timeseries bool `json:"-"`
	// SourceURI records where the property came from, for skip/loss reporting.
	SourceURI string `json:"-"`
}

// EntityType is one class in the target ontology.
type EntityType struct {
	ID                    string                `json:"id"`
	Name                  string                `json:"name"`
	Namespace             string                `json:"namespace,omitempty"`
	NamespaceType         string                `json:"namespaceType,omitempty"`
	Visibility            string                `json:"visibility,omitempty"`
	BaseEntityTypeID      string                `json:"baseEntityTypeId,omitempty"`
	EntityIDParts         []string              `json:"entityIdParts"`
	DisplayNamePropertyID string                `json:"displayNamePropertyId,omitempty"`
	Properties            []*EntityTypeProperty `json:"properties"`
	TimeseriesProperties  []*EntityTypeProperty `json:"timeseriesProperties"`

	SourceURI string `json:"-"`
}

// AddProperty appends p to the correct collection based on its routing flag.
func (e *EntityType) AddProperty(p *EntityTypeProperty) {
	if p.Timeseries {
		e.TimeseriesProperties = append(e.TimeseriesProperties, p)
		return
	}
	e.Properties = append(e.Properties, p)
}

// Property returns the non-timeseries property with the given ID.
func (e *EntityType) Property(id string) *EntityTypeProperty {
	for _, p := range e.Properties {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// PropertyByName returns the first property (either collection) with the
// given name.
func (e *EntityType) PropertyByName(name string) *EntityTypeProperty {
	for _, p := range e.Properties {
		if p.Name == name {
			return p
		}
	}
	for _, p := range e.TimeseriesProperties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// AllProperties returns regular then timeseries properties.
func (e *EntityType) AllProperties() []*EntityTypeProperty {
	out := make([]*EntityTypeProperty, 0, len(e.Properties)+len(e.TimeseriesProperties))
	out = append(out, e.Properties...)
	out = append(out, e.TimeseriesProperties...)
	return out
}

// RelationshipEnd names one endpoint of a relationship type.
type RelationshipEnd struct {
	EntityTypeID string `json:"entityTypeId"`
}

// RelationshipType is a named directed edge kind between two entity types.
type RelationshipType struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Source        RelationshipEnd `json:"source"`
	Target        RelationshipEnd `json:"target"`
	Namespace     string          `json:"namespace,omitempty"`
	NamespaceType string          `json:"namespaceType,omitempty"`

	// Inferred marks relationships whose domain/range were derived from
	// observed instance usage rather than explicit declarations.
	Inferred  bool   `json:"-"`
	SourceURI string `json:"-"`
}

// SkippedItem is an unambiguous record of non-fatal loss during conversion.
type SkippedItem struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Reason    string `json:"reason"`
	SourceURI string `json:"source_uri,omitempty"`
}

// WarningCode classifies a conversion warning.
type WarningCode string

const (
	WarnConvertedWithLimitations WarningCode = "CONVERTED_WITH_LIMITATIONS"
	WarnLost                     WarningCode = "LOST"
	WarnGeneral                  WarningCode = "GENERAL"
)

// ConversionWarning is a non-fatal diagnostic attached to a result.
type ConversionWarning struct {
	Code       WarningCode `json:"code"`
	Construct  string      `json:"construct,omitempty"`
	Message    string      `json:"message"`
	Workaround string      `json:"workaround,omitempty"`
}

// ConversionResult is the output contract shared by every converter.
type ConversionResult struct {
	EntityTypes       []*EntityType       `json:"entity_types"`
	RelationshipTypes []*RelationshipType `json:"relationship_types"`
	SkippedItems      []SkippedItem       `json:"skipped_items"`
	Warnings          []ConversionWarning `json:"warnings"`
	TripleCount       int                 `json:"triple_count"`
}

// SuccessRate is 100 × converted / (converted + skipped). Zero inputs count
// as a fully successful conversion.
func (r *ConversionResult) SuccessRate() float64 {
	converted := len(r.EntityTypes) + len(r.RelationshipTypes)
	total := converted + len(r.SkippedItems)
	if total == 0 {
		return 100
	}
	return 100 * float64(converted) / float64(total)
}

// Entity returns the entity type with the given ID, or nil.
func (r *ConversionResult) Entity(id string) *EntityType {
	for _, e := range r.EntityTypes {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// EntityByName returns the entity type with the given name, or nil.
func (r *ConversionResult) EntityByName(name string) *EntityType {
	for _, e := range r.EntityTypes {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Skip records a skipped construct.
func (r *ConversionResult) Skip(kind, name, reason, sourceURI string) {
	r.SkippedItems = append(r.SkippedItems, SkippedItem{Kind: kind, Name: name, Reason: reason, SourceURI: sourceURI})
}

// Warn records a general warning.
func (r *ConversionResult) Warn(code WarningCode, construct, message, workaround string) {
	r.Warnings = append(r.Warnings, ConversionWarning{Code: code, Construct: construct, Message: message, Workaround: workaround})
}
