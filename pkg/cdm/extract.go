package cdm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ontoforge/ontoforge/pkg/compliance"
	"github.com/ontoforge/ontoforge/pkg/convert"
	"github.com/ontoforge/ontoforge/pkg/model"
	"github.com/ontoforge/ontoforge/pkg/typemap"
)

// DefaultNamespace routes emitted types when none is configured.
const DefaultNamespace = "usr"

// Identity and naming traits interpreted during extraction.
const (
	traitIdentityID   = "means.identity.entityId"
	traitIdentityName = "means.identity.name"
	traitVerbPhrase   = "means.relationship.verbPhrase"

	purposeIdentifiedBy = "identifiedBy"
	purposeNamedBy      = "namedBy"
)

// Standard library roots that do not contribute inheritance.
var standardRoots = map[string]struct{}{
	"CdmEntity": {},
	"CdmObject": {},
}

// Converter is the CDM → intermediate model converter.
type Converter struct {
	opts convert.Options
}

// New returns a CDM converter.
func New(opts convert.Options) *Converter {
	return &Converter{opts: opts}
}

// FormatName implements convert.Converter.
func (c *Converter) FormatName() string { return "cdm" }

// Validate runs the full conversion without keeping the output.
func (c *Converter) Validate(ctx context.Context, path string) (*model.ConversionResult, *compliance.Report, error) {
	return c.Convert(ctx, path)
}

// Convert loads a manifest, entity document, or model.json and extracts
// entity and relationship types.
func (c *Converter) Convert(ctx context.Context, path string) (*model.ConversionResult, *compliance.Report, error) {
	corpus, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	return c.ConvertCorpus(ctx, corpus)
}

// ConvertCorpus extracts an already-loaded corpus.
func (c *Converter) ConvertCorpus(ctx context.Context, corpus *Corpus) (*model.ConversionResult, *compliance.Report, error) {
	ex := &cdmExtraction{
		opts:      c.opts,
		ids:       model.NewIDGenerator(c.opts.IDPrefix),
		result:    &model.ConversionResult{},
		rec:       compliance.NewRecorder("cdm"),
		byName:    make(map[string]*Entity),
		entities:  make(map[string]*model.EntityType),
		propByKey: make(map[string]*model.EntityTypeProperty),
		namespace: c.opts.Namespace,
	}
	if ex.namespace == "" {
		ex.namespace = DefaultNamespace
	}

	for i := range corpus.Entities {
		e := &corpus.Entities[i]
		ex.byName[e.Name] = e
		ex.order = append(ex.order, e.Name)
	}
	ex.wireInheritance()

	for i, name := range ex.order {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		ex.emitEntity(ex.byName[name])
		c.opts.Report(convert.ProgressEvent{Phase: "entity extraction", Processed: i + 1, Total: len(ex.order)})
	}
	for _, name := range ex.order {
		ex.emitAttributeRelationships(ex.byName[name])
	}
	for _, rel := range corpus.Relationships {
		ex.emitManifestRelationship(rel)
	}
	for _, name := range ex.order {
		ex.assignIdentity(ex.byName[name])
	}

	for _, name := range ex.order {
		ex.result.EntityTypes = append(ex.result.EntityTypes, ex.entities[name])
	}
	report := ex.rec.Report(ex.result)
	if c.opts.Strict {
		if err := report.CheckStrict(); err != nil {
			return ex.result, report, err
		}
	}
	return ex.result, report, nil
}

type cdmExtraction struct {
	opts   convert.Options
	ids    *model.IDGenerator
	result *model.ConversionResult
	rec    *compliance.Recorder

	byName    map[string]*Entity
	order     []string
	parent    map[string]string
	entities  map[string]*model.EntityType
	propByKey map[string]*model.EntityTypeProperty // "entity|attr" → property
	namespace string
}

func (ex *cdmExtraction) wireInheritance() {
	ex.parent = make(map[string]string)
	for _, name := range ex.order {
		base := entityNameFromRef(ex.byName[name].ExtendsEntity)
		if base == "" || base == name {
			continue
		}
		if _, std := standardRoots[base]; std {
			continue
		}
		if _, known := ex.byName[base]; !known {
			ex.result.Warn(model.WarnGeneral, "extendsEntity",
				fmt.Sprintf("%s extends %s, which is not in the loaded corpus; treated as a root", name, base), "")
			continue
		}
		ex.parent[name] = base
	}

	// Cut cycles: an entity is on a cycle when the parent walk returns to it.
	for _, name := range ex.order {
		visited := map[string]struct{}{}
		node := name
		for {
			next, ok := ex.parent[node]
			if !ok {
				break
			}
			if _, loop := visited[node]; loop {
				if node == name {
					ex.result.Warn(model.WarnGeneral, "extendsEntity",
						fmt.Sprintf("cyclic inheritance detected for %s; parent link dropped", name), "")
					delete(ex.parent, name)
				}
				break
			}
			visited[node] = struct{}{}
			node = next
		}
	}
}

// effectiveAttributes returns the attribute list for emission. With
// inheritance flattening, ancestor attributes are inlined ahead of the
// entity's own, child declarations overriding by name.
func (ex *cdmExtraction) effectiveAttributes(e *Entity) []Attribute {
	if !ex.opts.FlattenInheritance {
		return e.Attributes
	}

	var chain []*Entity
	for node := e.Name; ; {
		chain = append(chain, ex.byName[node])
		p, ok := ex.parent[node]
		if !ok {
			break
		}
		node = p
	}

	// Ancestors first; later (more derived) declarations override.
	merged := make([]Attribute, 0)
	index := make(map[string]int)
	for i := len(chain) - 1; i >= 0; i-- {
		for _, attr := range chain[i].Attributes {
			if at, seen := index[attr.Name]; seen {
				merged[at] = attr
				continue
			}
			index[attr.Name] = len(merged)
			merged = append(merged, attr)
		}
	}
	return merged
}

func (ex *cdmExtraction) emitEntity(e *Entity) {
	entity := &model.EntityType{
		ID:            ex.ids.For("cdm|" + e.Name),
		Name:          model.SanitizeName(e.Name),
		Namespace:     ex.namespace,
		NamespaceType: "Custom",
		Visibility:    "Visible",
		EntityIDParts: []string{},
		SourceURI:     e.Source,
	}
	if !ex.opts.FlattenInheritance {
		if p, ok := ex.parent[e.Name]; ok {
			entity.BaseEntityTypeID = ex.entities[p].ID
		}
	}
	ex.entities[e.Name] = entity
	ex.rec.Observe("entity", entity.Name, e.Source)

	for _, attr := range ex.effectiveAttributes(e) {
		if attr.Name == "" {
			continue
		}
		if isEntityTyped(attr) {
			// Promoted to a relationship in a later pass.
			continue
		}
		ex.emitAttribute(entity, e, attr)
	}
}

func (ex *cdmExtraction) emitAttribute(entity *model.EntityType, e *Entity, attr Attribute) {
	name := model.SanitizeName(attr.Name)
	if entity.PropertyByName(name) != nil {
		ex.result.Skip("attribute", name, "duplicate attribute name on entity", e.Source)
		return
	}

	valueType := model.ValueString
	if attr.DataType != "" {
		mapped, ok := typemap.FromCDM(attr.DataType)
		if !ok {
			ex.result.Warn(model.WarnGeneral, "attribute",
				fmt.Sprintf("attribute %q has unmapped data type %q; defaulting to String", attr.Name, attr.DataType), "")
		} else {
			valueType = mapped
		}
	}

	prop := &model.EntityTypeProperty{
		ID:        ex.ids.For("cdm|" + e.Name + "|" + attr.Name),
		Name:      name,
		ValueType: valueType,
		SourceURI: e.Source,
	}
	entity.AddProperty(prop)
	ex.propByKey[e.Name+"|"+attr.Name] = prop
	ex.rec.Observe("attribute", name, e.Source)
	if len(attr.Traits) > 0 && !isIdentityAttr(attr) && !isDisplayAttr(attr) {
		ex.rec.Observe("trait", name, e.Source)
	}
}

func isEntityTyped(attr Attribute) bool {
	dt := strings.ToLower(attr.DataType)
	return dt == "entity" || dt == "entityreference" || attr.TargetEntity != ""
}

func isIdentityAttr(attr Attribute) bool {
	return attr.Purpose == purposeIdentifiedBy || HasTrait(attr.Traits, traitIdentityID)
}

func isDisplayAttr(attr Attribute) bool {
	return attr.Purpose == purposeNamedBy || HasTrait(attr.Traits, traitIdentityName)
}

// emitAttributeRelationships promotes entity-typed attributes into
// relationship types.
func (ex *cdmExtraction) emitAttributeRelationships(e *Entity) {
	source := ex.entities[e.Name]
	for _, attr := range ex.effectiveAttributes(e) {
		if !isEntityTyped(attr) {
			continue
		}
		targetName := entityNameFromRef(attr.TargetEntity)
		target, known := ex.entities[targetName]
		if !known {
			ex.result.Skip("relationship", attr.Name,
				fmt.Sprintf("target entity %q not found in corpus", targetName), e.Source)
			continue
		}

		name := TraitArgument(attr.Traits, traitVerbPhrase)
		if name == "" {
			name = source.Name + "_to_" + target.Name
		}
		ex.result.RelationshipTypes = append(ex.result.RelationshipTypes, &model.RelationshipType{
			ID:            ex.ids.For("cdm|" + e.Name + "|" + attr.Name + "|" + targetName),
			Name:          model.SanitizeName(name),
			Source:        model.RelationshipEnd{EntityTypeID: source.ID},
			Target:        model.RelationshipEnd{EntityTypeID: target.ID},
			Namespace:     ex.namespace,
			NamespaceType: "Custom",
			SourceURI:     e.Source,
		})
		ex.rec.Observe("entityReference", attr.Name, e.Source)
	}
}

func (ex *cdmExtraction) emitManifestRelationship(rel ManifestRelationship) {
	fromName := entityNameFromRef(rel.FromEntity)
	toName := entityNameFromRef(rel.ToEntity)
	from, okFrom := ex.entities[fromName]
	to, okTo := ex.entities[toName]
	if !okFrom || !okTo {
		ex.result.Skip("relationship", rel.Name,
			fmt.Sprintf("endpoints %q and %q did not both resolve in the corpus", fromName, toName), "")
		return
	}

	name := rel.Name
	if name == "" {
		name = TraitArgument(rel.Traits, traitVerbPhrase)
	}
	if name == "" {
		name = from.Name + "_to_" + to.Name
	}
	ex.result.RelationshipTypes = append(ex.result.RelationshipTypes, &model.RelationshipType{
		ID:            ex.ids.For("cdm|rel|" + fromName + "|" + rel.FromAttribute + "|" + toName + "|" + rel.ToAttribute),
		Name:          model.SanitizeName(name),
		Source:        model.RelationshipEnd{EntityTypeID: from.ID},
		Target:        model.RelationshipEnd{EntityTypeID: to.ID},
		Namespace:     ex.namespace,
		NamespaceType: "Custom",
	})
	ex.rec.Observe("relationship", name, "")
}

// assignIdentity fills entityIdParts and displayNamePropertyId from identity
// traits, falling back to the shared heuristic when none are declared.
func (ex *cdmExtraction) assignIdentity(e *Entity) {
	entity := ex.entities[e.Name]

	var keyIDs []string
	display := ""
	for _, attr := range ex.effectiveAttributes(e) {
		prop, ok := ex.propByKey[e.Name+"|"+attr.Name]
		if !ok {
			// Inherited flattened attributes keep their declaring entity key.
			prop = entity.PropertyByName(model.SanitizeName(attr.Name))
			if prop == nil {
				continue
			}
		}
		if isIdentityAttr(attr) {
			keyIDs = append(keyIDs, prop.ID)
		}
		if display == "" && isDisplayAttr(attr) {
			display = prop.ID
		}
	}

	if len(keyIDs) > 0 {
		entity.EntityIDParts = keyIDs
	}
	if display != "" {
		entity.DisplayNamePropertyID = display
	}
	if len(entity.EntityIDParts) == 0 || entity.DisplayNamePropertyID == "" {
		saved := entity.EntityIDParts
		model.AssignIdentifiers(entity)
		if len(saved) > 0 {
			entity.EntityIDParts = saved
		}
		if display != "" {
			entity.DisplayNamePropertyID = display
		}
	}
}

// entityNameFromRef reduces a corpus path or bare name to the entity name:
// Folder/File.cdm.json/Person → Person, Person.cdm.json → Person.
func entityNameFromRef(ref string) string {
	if ref == "" {
		return ""
	}
	ref = strings.TrimSuffix(ref, "/")
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		last := ref[i+1:]
		if !strings.HasSuffix(strings.ToLower(last), ".cdm.json") {
			return last
		}
		ref = last
	}
	lower := strings.ToLower(ref)
	if strings.HasSuffix(lower, ".cdm.json") {
		return ref[:len(ref)-len(".cdm.json")]
	}
	return ref
}
