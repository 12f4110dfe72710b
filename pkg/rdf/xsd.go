package rdf

import (
	"github.com/ontoforge/ontoforge/pkg/model"
	"github.com/ontoforge/ontoforge/pkg/typemap"
)

func isXSD(uri string) bool { return typemap.IsXSD(uri) }

func fromXSD(uri string) (model.ValueType, bool) { return typemap.FromXSD(uri) }

func resolveXSDUnion(uris []string) (model.ValueType, []string) {
	return typemap.ResolveXSDUnion(uris)
}
