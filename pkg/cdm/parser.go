// Package cdm converts Common Data Model manifests, entity schema documents,
// and model.json catalogs into the intermediate model.
package cdm

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrNotCDM            = errors.New("document is not a CDM schema")
	ErrMalformedDocument = errors.New("malformed CDM document")
	ErrUnresolvablePath  = errors.New("corpus path cannot be resolved")
)

// Kind is the CDM document flavor.
type Kind string

const (
	KindManifest Kind = "manifest"
	KindEntity   Kind = "entity"
	KindModel    Kind = "model"
)

// DetectKind classifies a CDM document by filename first, content shape
// second.
func DetectKind(path string, data []byte) (Kind, error) {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(base, ".manifest.cdm.json"):
		return KindManifest, nil
	case base == "model.json":
		return KindModel, nil
	case strings.HasSuffix(base, ".cdm.json"):
		return KindEntity, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	switch {
	case probe["manifestName"] != nil:
		return KindManifest, nil
	case probe["definitions"] != nil:
		return KindEntity, nil
	case probe["entities"] != nil:
		return KindModel, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotCDM, path)
}

// Attribute is one attribute of an entity definition.
type Attribute struct {
	Name         string
	DataType     string
	Purpose      string
	Traits       []Trait
	Description  string
	TargetEntity string // set for entity/entityReference typed attributes
}

// Trait is an applied trait, possibly carrying arguments.
type Trait struct {
	Reference string
	Arguments []string
}

// Entity is one entity definition with its source document.
type Entity struct {
	Name          string
	ExtendsEntity string
	Attributes    []Attribute
	Source        string
}

// ManifestRelationship is a relationship declared at manifest level.
type ManifestRelationship struct {
	Name          string
	FromEntity    string // corpus path
	FromAttribute string
	ToEntity      string // corpus path
	ToAttribute   string
	Traits        []Trait
}

// Corpus is the loaded CDM document set.
type Corpus struct {
	Entities      []Entity
	Relationships []ManifestRelationship
}

// loader tracks visited files so import and entityPath chains cannot reload
// or loop.
type loader struct {
	baseDir string
	visited map[string]struct{}
	corpus  *Corpus
	// seen guards against duplicate entity definitions across documents.
	seen map[string]struct{}
}

// Load reads a CDM corpus rooted at path: a manifest, a single entity
// document, or a model.json catalog.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	kind, err := DetectKind(path, data)
	if err != nil {
		return nil, err
	}

	l := &loader{
		baseDir: filepath.Dir(path),
		visited: make(map[string]struct{}),
		corpus:  &Corpus{},
		seen:    make(map[string]struct{}),
	}
	l.visited[cleanKey(path)] = struct{}{}

	switch kind {
	case KindManifest:
		err = l.loadManifest(path, data)
	case KindEntity:
		err = l.loadEntityDocument(path, data, "")
	case KindModel:
		err = l.loadModel(path, data)
	}
	if err != nil {
		return nil, err
	}
	if len(l.corpus.Entities) == 0 {
		return nil, fmt.Errorf("%w: no entity definitions found in %s", ErrNotCDM, path)
	}
	return l.corpus, nil
}

func cleanKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// ResolveCorpusPath splits a reference of the form
// Folder/File.cdm.json/EntityName into a file path under baseDir and the
// entity name. A reference without an entity segment addresses the whole
// document.
func ResolveCorpusPath(baseDir, ref string) (file, entity string, err error) {
	ref = strings.TrimPrefix(ref, "/")
	if ref == "" {
		return "", "", fmt.Errorf("%w: empty reference", ErrUnresolvablePath)
	}
	if strings.Contains(ref, "..") {
		return "", "", fmt.Errorf("%w: %q escapes the corpus root", ErrUnresolvablePath, ref)
	}

	lower := strings.ToLower(ref)
	if i := strings.LastIndex(lower, ".cdm.json/"); i >= 0 {
		split := i + len(".cdm.json")
		return filepath.Join(baseDir, filepath.FromSlash(ref[:split])), ref[split+1:], nil
	}
	if strings.HasSuffix(lower, ".cdm.json") || strings.HasSuffix(lower, "model.json") {
		return filepath.Join(baseDir, filepath.FromSlash(ref)), "", nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnresolvablePath, ref)
}

func (l *loader) loadManifest(path string, data []byte) error {
	var m struct {
		Entities []struct {
			Type       string `json:"type"`
			EntityName string `json:"entityName"`
			EntityPath string `json:"entityPath"`
		} `json:"entities"`
		Relationships []json.RawMessage `json:"relationships"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%s: %w: %v", path, ErrMalformedDocument, err)
	}

	dir := filepath.Dir(path)
	for _, e := range m.Entities {
		if e.EntityPath == "" {
			continue
		}
		file, entity, err := ResolveCorpusPath(dir, e.EntityPath)
		if err != nil {
			return fmt.Errorf("%s: entity %q: %w", path, e.EntityName, err)
		}
		if err := l.loadEntityFile(file, entity); err != nil {
			return err
		}
	}

	for _, raw := range m.Relationships {
		var r map[string]interface{}
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		l.corpus.Relationships = append(l.corpus.Relationships, ManifestRelationship{
			Name:          str(r["name"]),
			FromEntity:    entityRefString(r["fromEntity"]),
			FromAttribute: str(r["fromEntityAttribute"]),
			ToEntity:      entityRefString(r["toEntity"]),
			ToAttribute:   str(r["toEntityAttribute"]),
			Traits:        parseTraits(r["exhibitsTraits"]),
		})
	}
	return nil
}

func (l *loader) loadEntityFile(path, onlyEntity string) error {
	key := cleanKey(path)
	if _, done := l.visited[key]; done && onlyEntity == "" {
		return nil
	}
	l.visited[key] = struct{}{}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return l.loadEntityDocument(path, data, onlyEntity)
}

func (l *loader) loadEntityDocument(path string, data []byte, onlyEntity string) error {
	var doc struct {
		Definitions []map[string]interface{} `json:"definitions"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: %w: %v", path, ErrMalformedDocument, err)
	}
	for _, def := range doc.Definitions {
		name := str(def["entityName"])
		if name == "" {
			continue
		}
		if onlyEntity != "" && name != onlyEntity {
			continue
		}
		if _, dup := l.seen[name]; dup {
			continue
		}
		l.seen[name] = struct{}{}
		l.corpus.Entities = append(l.corpus.Entities, parseEntity(def, path))
	}
	return nil
}

func (l *loader) loadModel(path string, data []byte) error {
	var m struct {
		Entities []map[string]interface{} `json:"entities"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%s: %w: %v", path, ErrMalformedDocument, err)
	}
	for _, e := range m.Entities {
		name := str(e["name"])
		if name == "" {
			continue
		}
		if _, dup := l.seen[name]; dup {
			continue
		}
		l.seen[name] = struct{}{}

		entity := Entity{Name: name, Source: path}
		attrs, _ := e["attributes"].([]interface{})
		for _, a := range attrs {
			am, ok := a.(map[string]interface{})
			if !ok {
				continue
			}
			entity.Attributes = append(entity.Attributes, Attribute{
				Name:     str(am["name"]),
				DataType: str(am["dataType"]),
				Traits:   parseTraits(am["cdm:traits"]),
			})
		}
		l.corpus.Entities = append(l.corpus.Entities, entity)
	}
	return nil
}

func parseEntity(def map[string]interface{}, source string) Entity {
	e := Entity{
		Name:          str(def["entityName"]),
		ExtendsEntity: entityRefString(def["extendsEntity"]),
		Source:        source,
	}
	attrs, _ := def["hasAttributes"].([]interface{})
	for _, a := range attrs {
		am, ok := a.(map[string]interface{})
		if !ok {
			continue
		}
		e.Attributes = append(e.Attributes, parseAttribute(am))
	}
	return e
}

func parseAttribute(am map[string]interface{}) Attribute {
	attr := Attribute{
		Name:        str(am["name"]),
		Purpose:     refString(am["purpose"], "purposeReference"),
		Traits:      parseTraits(am["appliedTraits"]),
		Description: str(am["description"]),
	}

	switch dt := am["dataType"].(type) {
	case string:
		attr.DataType = dt
	case map[string]interface{}:
		attr.DataType = refString(dt, "dataTypeReference")
	}

	// An entity-typed attribute carries its target in the "entity" field,
	// either as a corpus path string or as an entity reference object.
	if target := am["entity"]; target != nil {
		if attr.DataType == "" {
			attr.DataType = "entity"
		}
		attr.TargetEntity = entityRefString(target)
	}
	return attr
}

// entityRefString extracts an entity name or corpus path from a string or an
// entity reference object.
func entityRefString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if s := refString(t, "entityReference"); s != "" {
			return s
		}
		if s := str(t["source"]); s != "" {
			return s
		}
		return str(t["entityName"])
	}
	return ""
}

func refString(v interface{}, key string) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		return str(t[key])
	}
	return ""
}

func parseTraits(v interface{}) []Trait {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []Trait
	for _, item := range items {
		switch t := item.(type) {
		case string:
			out = append(out, Trait{Reference: t})
		case map[string]interface{}:
			trait := Trait{Reference: str(t["traitReference"])}
			if trait.Reference == "" {
				trait.Reference = str(t["name"])
			}
			args, _ := t["arguments"].([]interface{})
			for _, a := range args {
				switch av := a.(type) {
				case string:
					trait.Arguments = append(trait.Arguments, av)
				case map[string]interface{}:
					if s := str(av["value"]); s != "" {
						trait.Arguments = append(trait.Arguments, s)
					}
				}
			}
			out = append(out, trait)
		}
	}
	return out
}

// HasTrait reports whether a trait reference is present.
func HasTrait(traits []Trait, ref string) bool {
	for _, t := range traits {
		if t.Reference == ref {
			return true
		}
	}
	return false
}

// TraitArgument returns the first argument of the named trait.
func TraitArgument(traits []Trait, ref string) string {
	for _, t := range traits {
		if t.Reference == ref && len(t.Arguments) > 0 {
			return t.Arguments[0]
		}
	}
	return ""
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

// sortedEntityNames is a test hook: corpus entity names in sorted order.
func (c *Corpus) sortedEntityNames() []string {
	names := make([]string, 0, len(c.Entities))
	for _, e := range c.Entities {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}
