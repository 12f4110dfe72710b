// Package bundle serializes a conversion result into the Fabric definition
// wire format: an ordered list of base64 parts addressed by path.
package bundle

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/ontoforge/ontoforge/pkg/model"
)

// ErrInheritanceCycle is returned when entity types cannot be ordered
// parent-first.
var ErrInheritanceCycle = errors.New("inheritance graph contains a cycle")

// PayloadTypeInlineBase64 tags every part payload.
const PayloadTypeInlineBase64 = "InlineBase64"

const platformPath = ".platform"

// Part is one addressed payload of a definition bundle.
type Part struct {
	Path        string `json:"path"`
	Payload     string `json:"payload"`
	PayloadType string `json:"payloadType"`
}

// Definition is the complete upload bundle.
type Definition struct {
	Parts []Part `json:"parts"`
}

type platformMetadata struct {
	Metadata struct {
		Type        string `json:"type"`
		DisplayName string `json:"displayName"`
	} `json:"metadata"`
}

// Build serializes the result into a definition bundle. Part order is fixed:
// .platform, the empty definition.json, entity types parents-first, then
// relationship types in insertion order. Payloads are canonical JSON, so two
// builds of the same result are byte-identical.
func Build(result *model.ConversionResult, displayName string) (*Definition, error) {
	d := &Definition{}

	var platform platformMetadata
	platform.Metadata.Type = "Ontology"
	platform.Metadata.DisplayName = displayName
	if err := d.addJSON(platformPath, platform); err != nil {
		return nil, err
	}
	d.addRaw("definition.json", []byte("{}"))

	ordered, err := topoSort(result.EntityTypes)
	if err != nil {
		return nil, err
	}
	for _, e := range ordered {
		if err := d.addJSON(fmt.Sprintf("EntityTypes/%s/definition.json", e.ID), e); err != nil {
			return nil, err
		}
	}
	for _, r := range result.RelationshipTypes {
		if err := d.addJSON(fmt.Sprintf("RelationshipTypes/%s/definition.json", r.ID), r); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Definition) addJSON(path string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", path, err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return fmt.Errorf("canonicalize %s: %w", path, err)
	}
	d.addRaw(path, canonical)
	return nil
}

func (d *Definition) addRaw(path string, payload []byte) {
	d.Parts = append(d.Parts, Part{
		Path:        path,
		Payload:     base64.StdEncoding.EncodeToString(payload),
		PayloadType: PayloadTypeInlineBase64,
	})
}

// Part returns the part at path, or nil.
func (d *Definition) Part(path string) *Part {
	for i := range d.Parts {
		if d.Parts[i].Path == path {
			return &d.Parts[i]
		}
	}
	return nil
}

// SizeBytes is the serialized size of the bundle, the quantity the Fabric
// definition-size quota applies to.
func (d *Definition) SizeBytes() int64 {
	raw, err := json.Marshal(d)
	if err != nil {
		return 0
	}
	return int64(len(raw))
}

// Hash is a stable content address of the bundle.
func (d *Definition) Hash() string {
	h := sha256.New()
	for _, p := range d.Parts {
		h.Write([]byte(p.Path))
		h.Write([]byte{0})
		h.Write([]byte(p.Payload))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// topoSort orders entities parents-first, preserving input order among
// unrelated entities.
func topoSort(entities []*model.EntityType) ([]*model.EntityType, error) {
	byID := make(map[string]*model.EntityType, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}

	children := make(map[string][]*model.EntityType)
	indeg := make(map[string]int, len(entities))
	for _, e := range entities {
		indeg[e.ID] = 0
	}
	for _, e := range entities {
		if e.BaseEntityTypeID == "" {
			continue
		}
		if _, ok := byID[e.BaseEntityTypeID]; !ok {
			// Dangling bases are the limits validator's finding, not an
			// ordering concern.
			continue
		}
		children[e.BaseEntityTypeID] = append(children[e.BaseEntityTypeID], e)
		indeg[e.ID]++
	}

	var queue, ordered []*model.EntityType
	for _, e := range entities {
		if indeg[e.ID] == 0 {
			queue = append(queue, e)
		}
	}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		ordered = append(ordered, e)
		for _, child := range children[e.ID] {
			indeg[child.ID]--
			if indeg[child.ID] == 0 {
				queue = append(queue, child)
			}
		}
	}
	if len(ordered) != len(entities) {
		return nil, ErrInheritanceCycle
	}
	return ordered, nil
}
