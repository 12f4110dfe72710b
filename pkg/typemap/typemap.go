// Package typemap holds the static tables from source primitive types to
// Fabric value types, and the union-resolution rule shared by all three
// converters.
package typemap

import (
	"strings"

	"github.com/ontoforge/ontoforge/pkg/model"
)

// XSD is the XML Schema datatype namespace.
const XSD = "http://www.w3.org/2001/XMLSchema#"

var xsdTable = map[string]model.ValueType{
	"string":           model.ValueString,
	"normalizedString": model.ValueString,
	"token":            model.ValueString,
	"language":         model.ValueString,
	"anyURI":           model.ValueString,
	"time":             model.ValueString,

	"integer":            model.ValueBigInt,
	"int":                model.ValueBigInt,
	"long":               model.ValueBigInt,
	"short":              model.ValueBigInt,
	"byte":               model.ValueBigInt,
	"nonNegativeInteger": model.ValueBigInt,
	"nonPositiveInteger": model.ValueBigInt,
	"positiveInteger":    model.ValueBigInt,
	"negativeInteger":    model.ValueBigInt,
	"unsignedLong":       model.ValueBigInt,
	"unsignedInt":        model.ValueBigInt,
	"unsignedShort":      model.ValueBigInt,
	"unsignedByte":       model.ValueBigInt,

	"float":   model.ValueDouble,
	"double":  model.ValueDouble,
	"decimal": model.ValueDouble,

	"boolean": model.ValueBoolean,

	"date":          model.ValueDateTime,
	"dateTime":      model.ValueDateTime,
	"dateTimeStamp": model.ValueDateTime,
}

// FromXSD maps an XSD datatype URI (or bare local name) to a Fabric type.
func FromXSD(uri string) (model.ValueType, bool) {
	name := strings.TrimPrefix(uri, XSD)
	v, ok := xsdTable[name]
	return v, ok
}

// IsXSD reports whether the URI lives in the XSD namespace.
func IsXSD(uri string) bool {
	return strings.HasPrefix(uri, XSD)
}

var dtdlTable = map[string]model.ValueType{
	"string": model.ValueString,

	"byte":            model.ValueBigInt,
	"short":           model.ValueBigInt,
	"integer":         model.ValueBigInt,
	"long":            model.ValueBigInt,
	"unsignedByte":    model.ValueBigInt,
	"unsignedShort":   model.ValueBigInt,
	"unsignedInteger": model.ValueBigInt,
	"unsignedLong":    model.ValueBigInt,

	"float":   model.ValueDouble,
	"double":  model.ValueDouble,
	"decimal": model.ValueDouble,

	"boolean": model.ValueBoolean,

	"date":     model.ValueDateTime,
	"dateTime": model.ValueDateTime,

	// Represented as JSON-encoded strings.
	"scaledDecimal": model.ValueString,
	"duration":      model.ValueString,
	"time":          model.ValueString,
	"uuid":          model.ValueString,

	// Geospatial schemas serialize to GeoJSON strings.
	"point":           model.ValueString,
	"multiPoint":      model.ValueString,
	"lineString":      model.ValueString,
	"multiLineString": model.ValueString,
	"polygon":         model.ValueString,
	"multiPolygon":    model.ValueString,
}

// FromDTDL maps a DTDL primitive schema name to a Fabric type.
func FromDTDL(schema string) (model.ValueType, bool) {
	v, ok := dtdlTable[schema]
	return v, ok
}

var cdmTable = map[string]model.ValueType{
	"string":         model.ValueString,
	"char":           model.ValueString,
	"guid":           model.ValueString,
	"json":           model.ValueString,
	"binary":         model.ValueString,
	"byte":           model.ValueBigInt,
	"integer":        model.ValueBigInt,
	"int16":          model.ValueBigInt,
	"int32":          model.ValueBigInt,
	"int64":          model.ValueBigInt,
	"bigInteger":     model.ValueBigInt,
	"smallInteger":   model.ValueBigInt,
	"float":          model.ValueDouble,
	"double":         model.ValueDouble,
	"decimal":        model.ValueDouble,
	"currency":       model.ValueDouble,
	"boolean":        model.ValueBoolean,
	"date":           model.ValueDateTime,
	"dateTime":       model.ValueDateTime,
	"dateTimeOffset": model.ValueDateTime,
	"time":           model.ValueString,

	// Named semantic types.
	"email":       model.ValueString,
	"phone":       model.ValueString,
	"url":         model.ValueString,
	"postalCode":  model.ValueString,
	"displayName": model.ValueString,
	"name":        model.ValueString,
	"age":         model.ValueBigInt,
	"year":        model.ValueBigInt,
	"latitude":    model.ValueDouble,
	"longitude":   model.ValueDouble,
}

// FromCDM maps a CDM data type or format name to a Fabric type.
func FromCDM(name string) (model.ValueType, bool) {
	if name == "" {
		return "", false
	}
	if v, ok := cdmTable[name]; ok {
		return v, ok
	}
	// CDM data formats are frequently capitalized (Int32, String, ...).
	v, ok := cdmTable[strings.ToLower(name[:1])+name[1:]]
	return v, ok
}

// restrictiveness orders Fabric types from most to least restrictive. A type
// later in the order can represent any value of an earlier one, per the
// conversion contract Boolean > BigInt > Double > DateTime > String.
var restrictiveness = map[model.ValueType]int{
	model.ValueBoolean:  0,
	model.ValueBigInt:   1,
	model.ValueDouble:   2,
	model.ValueDateTime: 3,
	model.ValueString:   4,
}

// ResolveXSDUnion picks the most restrictive Fabric type covering every
// member of an owl:unionOf over datatypes. Members that map to no hierarchy
// tier force a fall-through to String; they are returned so the caller can
// attach them to a warning.
func ResolveXSDUnion(memberURIs []string) (model.ValueType, []string) {
	best := -1
	var unknown []string
	for _, uri := range memberURIs {
		v, ok := FromXSD(uri)
		if !ok {
			unknown = append(unknown, uri)
			continue
		}
		if r := restrictiveness[v]; r > best {
			best = r
		}
	}
	if len(unknown) > 0 || best < 0 {
		return model.ValueString, unknown
	}
	for v, r := range restrictiveness {
		if r == best {
			return v, nil
		}
	}
	return model.ValueString, unknown
}
