// Package dtdl converts DTDL v2/v3/v4 interface definitions into the
// intermediate model.
package dtdl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	ErrNotDTDL            = errors.New("document is not a DTDL interface")
	ErrUnsupportedContext = errors.New("unsupported DTDL context")
	ErrMalformedDocument  = errors.New("malformed DTDL document")
)

// interfaceSchema is the structural pre-check applied to every interface
// object before field extraction. Semantic rules (DTMI grammar, extends
// depth, name conflicts) are enforced by the extractor.
var interfaceSchema = jsonschema.MustCompileString("dtdl-interface.json", `{
  "type": "object",
  "required": ["@id", "@type"],
  "properties": {
    "@id": {"type": "string", "minLength": 1},
    "@type": {
      "anyOf": [
        {"type": "string"},
        {"type": "array", "items": {"type": "string"}}
      ]
    },
    "extends": {
      "anyOf": [
        {"type": "string"},
        {"type": "array", "items": {"type": "string"}}
      ]
    },
    "contents": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["@type", "name"],
        "properties": {
          "name": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`)

// Content is one element of an interface's contents array.
type Content struct {
	Types           []string
	Name            string
	Schema          interface{}
	Target          string
	MaxMultiplicity int // 0 when unset
	Description     string
}

// Kind returns the DTDL content kind (Property, Telemetry, Relationship,
// Component, Command), or "" when none of the known kinds is present.
func (c *Content) Kind() string {
	for _, t := range c.Types {
		switch t {
		case "Property", "Telemetry", "Relationship", "Component", "Command":
			return t
		}
	}
	return ""
}

// Interface is a parsed DTDL interface definition.
type Interface struct {
	ID             string
	DisplayName    string
	Description    string
	Extends        []string
	Contents       []Content
	ContextVersion int
	Source         string // file the interface was loaded from
}

// Load reads DTDL interfaces from a file or directory. Directories are
// scanned for .json files, descending into subdirectories when recursive
// is set. CDM documents sharing the .json suffix are skipped.
func Load(path string, recursive bool) ([]Interface, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return loadFile(path)
	}

	var files []string
	if recursive {
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isDTDLFile(p) {
				files = append(files, p)
			}
			return nil
		})
	} else {
		var entries []fs.DirEntry
		entries, err = os.ReadDir(path)
		for _, e := range entries {
			if !e.IsDir() && isDTDLFile(e.Name()) {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var all []Interface
	for _, f := range files {
		ifaces, err := loadFile(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		all = append(all, ifaces...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: no interfaces found under %s", ErrNotDTDL, path)
	}
	return all, nil
}

func isDTDLFile(name string) bool {
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".json") {
		return false
	}
	return !strings.HasSuffix(lower, ".cdm.json") && filepath.Base(lower) != "model.json"
}

func loadFile(path string) ([]Interface, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ifaces, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		ifaces[i].Source = path
	}
	return ifaces, nil
}

// Parse decodes a DTDL document: a single interface object, a JSON array of
// interfaces, or a @graph-wrapped expansion.
func Parse(data []byte) ([]Interface, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	switch v := doc.(type) {
	case []interface{}:
		return parseObjects(v, 0)
	case map[string]interface{}:
		if graph, ok := v["@graph"].([]interface{}); ok {
			version, err := contextVersion(v["@context"])
			if err != nil {
				return nil, err
			}
			return parseObjects(graph, version)
		}
		iface, err := parseInterface(v, 0)
		if err != nil {
			return nil, err
		}
		return []Interface{iface}, nil
	default:
		return nil, fmt.Errorf("%w: expected object or array", ErrMalformedDocument)
	}
}

func parseObjects(objs []interface{}, inheritedVersion int) ([]Interface, error) {
	var out []Interface
	for i, o := range objs {
		m, ok := o.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrMalformedDocument, i)
		}
		iface, err := parseInterface(m, inheritedVersion)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, iface)
	}
	return out, nil
}

func parseInterface(m map[string]interface{}, inheritedVersion int) (Interface, error) {
	if err := interfaceSchema.Validate(m); err != nil {
		return Interface{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if !containsType(m["@type"], "Interface") {
		return Interface{}, fmt.Errorf("%w: @type lacks Interface", ErrNotDTDL)
	}

	version := inheritedVersion
	if ctx, present := m["@context"]; present {
		v, err := contextVersion(ctx)
		if err != nil {
			return Interface{}, err
		}
		version = v
	}
	if version == 0 {
		return Interface{}, fmt.Errorf("%w: missing @context", ErrUnsupportedContext)
	}

	iface := Interface{
		ID:             str(m["@id"]),
		DisplayName:    localized(m["displayName"]),
		Description:    localized(m["description"]),
		Extends:        strs(m["extends"]),
		ContextVersion: version,
	}

	contents, _ := m["contents"].([]interface{})
	for _, c := range contents {
		cm, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		content := Content{
			Types:       typeStrings(cm["@type"]),
			Name:        str(cm["name"]),
			Schema:      cm["schema"],
			Target:      str(cm["target"]),
			Description: localized(cm["description"]),
		}
		if mm, ok := cm["maxMultiplicity"].(float64); ok {
			content.MaxMultiplicity = int(mm)
		}
		iface.Contents = append(iface.Contents, content)
	}
	return iface, nil
}

// contextVersion extracts the DTDL version from an @context value, which may
// be a string or an array mixing the DTDL context with extensions.
func contextVersion(ctx interface{}) (int, error) {
	candidates := strs(ctx)
	for _, c := range candidates {
		rest, ok := strings.CutPrefix(c, "dtmi:dtdl:context;")
		if !ok {
			continue
		}
		v, err := strconv.Atoi(rest)
		if err != nil || v < 2 || v > 4 {
			return 0, fmt.Errorf("%w: %q", ErrUnsupportedContext, c)
		}
		return v, nil
	}
	if len(candidates) > 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedContext, candidates[0])
	}
	return 0, nil
}

func containsType(v interface{}, want string) bool {
	for _, t := range typeStrings(v) {
		if t == want {
			return true
		}
	}
	return false
}

func typeStrings(v interface{}) []string { return strs(v) }

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

// strs accepts a string or an array of strings.
func strs(v interface{}) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []interface{}:
		var out []string
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// localized accepts a plain string or a localization map, preferring "en".
func localized(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if s, ok := t["en"].(string); ok {
			return s
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := t[k].(string); ok {
				return s
			}
		}
	}
	return ""
}
