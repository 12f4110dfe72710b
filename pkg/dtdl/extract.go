package dtdl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ontoforge/ontoforge/pkg/compliance"
	"github.com/ontoforge/ontoforge/pkg/convert"
	"github.com/ontoforge/ontoforge/pkg/model"
	"github.com/ontoforge/ontoforge/pkg/typemap"
)

// DefaultNamespace routes emitted types when none is configured.
const DefaultNamespace = "usr"

// ErrInheritanceTooDeep fails conversion when an extends chain exceeds the
// DTDL depth limit.
var ErrInheritanceTooDeep = errors.New("extends chain exceeds maximum inheritance depth")

// Converter is the DTDL → intermediate model converter.
type Converter struct {
	opts convert.Options
}

// New returns a DTDL converter.
func New(opts convert.Options) *Converter {
	return &Converter{opts: opts}
}

// FormatName implements convert.Converter.
func (c *Converter) FormatName() string { return "dtdl" }

// Validate runs the full conversion without keeping the output.
func (c *Converter) Validate(ctx context.Context, path string) (*model.ConversionResult, *compliance.Report, error) {
	return c.Convert(ctx, path)
}

// Convert loads path (a file or an interface directory) and extracts entity
// and relationship types.
func (c *Converter) Convert(ctx context.Context, path string) (*model.ConversionResult, *compliance.Report, error) {
	ifaces, err := Load(path, c.opts.Recursive)
	if err != nil {
		return nil, nil, err
	}
	return c.ConvertInterfaces(ctx, ifaces)
}

// ConvertInterfaces extracts an already-parsed interface set.
func (c *Converter) ConvertInterfaces(ctx context.Context, ifaces []Interface) (*model.ConversionResult, *compliance.Report, error) {
	ex := &extraction{
		opts:      c.opts,
		ids:       model.NewIDGenerator(c.opts.IDPrefix),
		result:    &model.ConversionResult{},
		rec:       compliance.NewRecorder("dtdl"),
		byDTMI:    make(map[string]*Interface),
		entities:  make(map[string]*model.EntityType),
		usedNames: make(map[string]string),
		namespace: c.opts.Namespace,
	}
	if ex.namespace == "" {
		ex.namespace = DefaultNamespace
	}

	ex.admit(ifaces)
	order, err := ex.sortByInheritance()
	if err != nil {
		return nil, nil, err
	}
	if len(order) > compliance.DTDLMaxHierarchySize {
		ex.result.Warn(model.WarnGeneral, "Interface",
			fmt.Sprintf("interface set holds %d interfaces, above the hierarchy limit %d", len(order), compliance.DTDLMaxHierarchySize), "")
	}

	for i, dtmi := range order {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		ex.emitEntity(ex.byDTMI[dtmi])
		c.opts.Report(convert.ProgressEvent{Phase: "interface extraction", Processed: i + 1, Total: len(order)})
	}
	for _, dtmi := range order {
		ex.emitContents(ex.byDTMI[dtmi])
	}
	for _, dtmi := range order {
		model.AssignIdentifiers(ex.entities[dtmi])
	}

	for _, dtmi := range order {
		ex.result.EntityTypes = append(ex.result.EntityTypes, ex.entities[dtmi])
	}
	report := ex.rec.Report(ex.result)
	if c.opts.Strict {
		if err := report.CheckStrict(); err != nil {
			return ex.result, report, err
		}
	}
	return ex.result, report, nil
}

type extraction struct {
	opts   convert.Options
	ids    *model.IDGenerator
	result *model.ConversionResult
	rec    *compliance.Recorder

	byDTMI    map[string]*Interface
	admitted  []string // DTMIs in admission order
	parent    map[string]string
	entities  map[string]*model.EntityType
	usedNames map[string]string
	namespace string
}

// admit filters the raw interface list: DTMIs must validate, duplicates keep
// the first occurrence.
func (ex *extraction) admit(ifaces []Interface) {
	for i := range ifaces {
		iface := &ifaces[i]
		if err := ValidateDTMI(iface.ID, true); err != nil {
			ex.result.Skip("interface", iface.ID, err.Error(), iface.Source)
			continue
		}
		if _, dup := ex.byDTMI[iface.ID]; dup {
			ex.result.Warn(model.WarnGeneral, "Interface",
				fmt.Sprintf("duplicate interface %s; keeping the first definition", iface.ID), "")
			continue
		}
		if len(iface.Contents) > compliance.DTDLMaxContents {
			ex.result.Skip("interface", iface.ID,
				fmt.Sprintf("contents count %d exceeds limit %d", len(iface.Contents), compliance.DTDLMaxContents), iface.Source)
			continue
		}
		ex.byDTMI[iface.ID] = iface
		ex.admitted = append(ex.admitted, iface.ID)
	}
}

// sortByInheritance resolves extends into a single-parent map and returns the
// admitted DTMIs parent-first via Kahn's algorithm. Extends cycles drop the
// offending parent link; chains deeper than the DTDL limit fail.
func (ex *extraction) sortByInheritance() ([]string, error) {
	ex.parent = make(map[string]string)
	for _, dtmi := range ex.admitted {
		iface := ex.byDTMI[dtmi]
		if len(iface.Extends) == 0 {
			continue
		}
		if len(iface.Extends) > 1 {
			ex.result.Warn(model.WarnLost, "extends",
				fmt.Sprintf("%s extends %d interfaces; keeping %s", dtmi, len(iface.Extends), iface.Extends[0]), "")
		}
		p := iface.Extends[0]
		if _, known := ex.byDTMI[p]; !known {
			ex.result.Warn(model.WarnGeneral, "extends",
				fmt.Sprintf("%s extends %s, which is not in the loaded set; treated as a root", dtmi, p), "")
			continue
		}
		ex.parent[dtmi] = p
	}

	// Kahn over child → parent edges: roots first.
	children := make(map[string][]string)
	indeg := make(map[string]int)
	for _, dtmi := range ex.admitted {
		indeg[dtmi] = 0
	}
	for child, p := range ex.parent {
		children[p] = append(children[p], child)
		indeg[child]++
	}
	var queue, order []string
	for _, dtmi := range ex.admitted {
		if indeg[dtmi] == 0 {
			queue = append(queue, dtmi)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, child := range children[n] {
			indeg[child]--
			if indeg[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
	if len(order) < len(ex.admitted) {
		// The remainder forms extends cycles. Drop their parent links and
		// append them in admission order.
		for _, dtmi := range ex.admitted {
			if indeg[dtmi] > 0 {
				ex.result.Warn(model.WarnGeneral, "extends",
					fmt.Sprintf("cyclic extends detected for %s; parent link dropped", dtmi), "")
				ex.result.Skip("inheritance", dtmi, "cycle detected in extends chain", dtmi)
				delete(ex.parent, dtmi)
				order = append(order, dtmi)
			}
		}
	}

	for _, dtmi := range ex.admitted {
		depth := 0
		for node := dtmi; ; depth++ {
			p, ok := ex.parent[node]
			if !ok {
				break
			}
			if depth >= compliance.DTDLMaxExtendsDepth {
				return nil, fmt.Errorf("%w: %s", ErrInheritanceTooDeep, dtmi)
			}
			node = p
		}
	}
	return order, nil
}

func (ex *extraction) emitEntity(iface *Interface) {
	name := iface.DisplayName
	if name == "" {
		name = dtmiLocalName(iface.ID)
	}
	name = ex.uniqueName(model.SanitizeName(name), iface.ID)

	e := &model.EntityType{
		ID:            ex.ids.For(iface.ID),
		Name:          name,
		Namespace:     ex.namespace,
		NamespaceType: "Custom",
		Visibility:    "Visible",
		EntityIDParts: []string{},
		SourceURI:     iface.ID,
	}
	if p, ok := ex.parent[iface.ID]; ok {
		e.BaseEntityTypeID = ex.entities[p].ID
	}
	ex.entities[iface.ID] = e
	ex.rec.Observe("Interface", name, iface.ID)
}

func (ex *extraction) uniqueName(name, dtmi string) string {
	owner, taken := ex.usedNames[name]
	if !taken || owner == dtmi {
		ex.usedNames[name] = dtmi
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if _, clash := ex.usedNames[candidate]; !clash {
			ex.usedNames[candidate] = dtmi
			ex.result.Warn(model.WarnGeneral, "",
				fmt.Sprintf("name %q already in use; %s renamed to %q", name, dtmi, candidate), "")
			return candidate
		}
	}
}

func (ex *extraction) emitContents(iface *Interface) {
	entity := ex.entities[iface.ID]
	for i := range iface.Contents {
		content := &iface.Contents[i]
		if len(content.Name) > compliance.DTDLMaxNameLength {
			ex.result.Skip("content", truncate(content.Name, 64),
				fmt.Sprintf("name exceeds %d characters", compliance.DTDLMaxNameLength), iface.ID)
			continue
		}
		switch content.Kind() {
		case "Property":
			ex.emitProperty(entity, iface, content, false)
		case "Telemetry":
			ex.rec.Observe("Telemetry", content.Name, iface.ID)
			ex.emitProperty(entity, iface, content, true)
		case "Relationship":
			ex.emitRelationship(entity, iface, content)
		case "Component":
			ex.emitComponent(entity, iface, content)
		case "Command":
			ex.emitCommand(entity, iface, content)
		default:
			ex.result.Skip("content", content.Name, "unrecognized content kind", iface.ID)
		}
	}
}

func (ex *extraction) emitProperty(entity *model.EntityType, iface *Interface, content *Content, timeseries bool) {
	name := model.SanitizeName(content.Name)
	valueType := ex.schemaValueType(iface, content)

	if entity.PropertyByName(name) != nil {
		ex.result.Skip("property", name, "duplicate content name on interface", iface.ID)
		return
	}

	redefines := ""
	if inherited := ex.inheritedProperty(iface.ID, name); inherited != nil {
		if inherited.ValueType == valueType {
			redefines = inherited.ID
		} else {
			suffixed := name + "_" + strings.ToLower(string(valueType))
			ex.result.Warn(model.WarnGeneral, "Property",
				fmt.Sprintf("property %q on %s conflicts with an inherited %s property; renamed to %q",
					name, entity.Name, inherited.ValueType, suffixed), "")
			name = suffixed
		}
	}

	entity.AddProperty(&model.EntityTypeProperty{
		ID:         ex.ids.For(iface.ID + "|" + name),
		Name:       name,
		ValueType:  valueType,
		Redefines:  redefines,
		Timeseries: timeseries,
		SourceURI:  iface.ID,
	})
	if !timeseries {
		ex.rec.Observe("Property", name, iface.ID)
	}
}

// inheritedProperty walks the parent chain looking for a property of the
// given name, nearest ancestor first.
func (ex *extraction) inheritedProperty(dtmi, name string) *model.EntityTypeProperty {
	node := dtmi
	for {
		p, ok := ex.parent[node]
		if !ok {
			return nil
		}
		if prop := ex.entities[p].PropertyByName(name); prop != nil {
			return prop
		}
		node = p
	}
}

func (ex *extraction) emitRelationship(entity *model.EntityType, iface *Interface, content *Content) {
	name := model.SanitizeName(content.Name)
	if content.Target == "" {
		ex.result.Skip("relationship", name, "missing target", iface.ID)
		return
	}
	target, known := ex.entities[content.Target]
	if !known {
		ex.result.Skip("relationship", name, "target interface not found in loaded set", iface.ID)
		return
	}
	if content.MaxMultiplicity != 0 && content.MaxMultiplicity < 1 {
		ex.result.Skip("relationship", name, "maxMultiplicity must be at least 1", iface.ID)
		return
	}

	ex.result.RelationshipTypes = append(ex.result.RelationshipTypes, &model.RelationshipType{
		ID:            ex.ids.For(iface.ID + "|" + name),
		Name:          name,
		Source:        model.RelationshipEnd{EntityTypeID: entity.ID},
		Target:        model.RelationshipEnd{EntityTypeID: target.ID},
		Namespace:     ex.namespace,
		NamespaceType: "Custom",
		SourceURI:     iface.ID,
	})
	ex.rec.Observe("Relationship", name, iface.ID)
}

func (ex *extraction) emitComponent(entity *model.EntityType, iface *Interface, content *Content) {
	name := model.SanitizeName(content.Name)
	ex.rec.Observe("Component", name, iface.ID)

	schemaDTMI, _ := content.Schema.(string)
	ref, known := ex.byDTMI[schemaDTMI]
	if schemaDTMI == "" || !known {
		ex.result.Skip("component", name, "component schema is not a resolvable interface DTMI", iface.ID)
		return
	}

	if !ex.opts.FlattenComponents {
		// Reference representation: one String property holding the schema
		// DTMI of the component.
		entity.AddProperty(&model.EntityTypeProperty{
			ID:        ex.ids.For(iface.ID + "|component|" + name),
			Name:      name,
			ValueType: model.ValueString,
			SourceURI: iface.ID,
		})
		return
	}

	for i := range ref.Contents {
		sub := &ref.Contents[i]
		kind := sub.Kind()
		if kind != "Property" && kind != "Telemetry" {
			continue
		}
		flat := name + "_" + model.SanitizeName(sub.Name)
		if entity.PropertyByName(flat) != nil {
			continue
		}
		entity.AddProperty(&model.EntityTypeProperty{
			ID:         ex.ids.For(iface.ID + "|" + name + "|" + sub.Name),
			Name:       flat,
			ValueType:  ex.schemaValueType(ref, sub),
			Timeseries: kind == "Telemetry",
			SourceURI:  iface.ID,
		})
	}
}

func (ex *extraction) emitCommand(entity *model.EntityType, iface *Interface, content *Content) {
	name := model.SanitizeName(content.Name)
	if !ex.opts.CommandsAsProperties {
		ex.rec.Observe("Command", name, iface.ID)
		return
	}
	ex.result.Warn(model.WarnConvertedWithLimitations, "Command",
		fmt.Sprintf("command %q surfaced as a String property; invocation semantics are lost", name), "")
	entity.AddProperty(&model.EntityTypeProperty{
		ID:        ex.ids.For(iface.ID + "|command|" + name),
		Name:      "command_" + name,
		ValueType: model.ValueString,
		SourceURI: iface.ID,
	})
}

// schemaValueType maps a content schema to a Fabric type. Complex schemas
// (Object, Map, Array, and Enum's shell) collapse per the support table.
func (ex *extraction) schemaValueType(iface *Interface, content *Content) model.ValueType {
	return ex.schemaValueTypeDepth(iface, content, content.Schema, 0)
}

func (ex *extraction) schemaValueTypeDepth(iface *Interface, content *Content, schema interface{}, depth int) model.ValueType {
	if depth > compliance.DTDLMaxSchemaDepth {
		ex.result.Warn(model.WarnConvertedWithLimitations, "ComplexSchema",
			fmt.Sprintf("schema of %q nests deeper than %d; collapsed to String", content.Name, compliance.DTDLMaxSchemaDepth), "")
		return model.ValueString
	}

	switch s := schema.(type) {
	case string:
		if v, ok := typemap.FromDTDL(s); ok {
			return v
		}
		if strings.HasPrefix(s, "dtmi:") {
			ex.result.Warn(model.WarnConvertedWithLimitations, "ComplexSchema",
				fmt.Sprintf("schema reference %s of %q is not resolvable; using String", s, content.Name), "")
			return model.ValueString
		}
		ex.result.Warn(model.WarnGeneral, "Property",
			fmt.Sprintf("unknown schema %q on %q; defaulting to String", s, content.Name), "")
		return model.ValueString
	case map[string]interface{}:
		switch kind := firstKnownSchemaType(s["@type"]); kind {
		case "Enum":
			// An enum converts to its value schema's primitive.
			if vs, ok := s["valueSchema"].(string); ok {
				if v, mapped := typemap.FromDTDL(vs); mapped {
					ex.rec.ObserveDetail("ComplexSchema", content.Name, iface.ID, "Enum")
					return v
				}
			}
			return model.ValueString
		case "Object", "Map", "Array":
			detail, _ := json.Marshal(s)
			ex.rec.ObserveDetail("ComplexSchema", content.Name, iface.ID, string(detail))
			return model.ValueString
		default:
			// Unwrap nested schema wrappers.
			if inner, ok := s["schema"]; ok {
				return ex.schemaValueTypeDepth(iface, content, inner, depth+1)
			}
			return model.ValueString
		}
	default:
		return model.ValueString
	}
}

func firstKnownSchemaType(v interface{}) string {
	for _, t := range strs(v) {
		switch t {
		case "Enum", "Object", "Map", "Array":
			return t
		}
	}
	return ""
}

// dtmiLocalName extracts the trailing path segment of a DTMI, dropping the
// version suffix: dtmi:com:example:Thermostat;1 → Thermostat.
func dtmiLocalName(dtmi string) string {
	s := dtmi
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	return s
}
