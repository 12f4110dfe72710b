package convert

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// RDFExtensions are the file suffixes routed to the RDF converter.
var RDFExtensions = []string{
	".ttl", ".rdf", ".owl", ".nt", ".n3", ".xml", ".trig", ".nq", ".nquads",
	".trix", ".hext", ".jsonld", ".html", ".xhtml", ".htm",
}

// CDMExtensions are the file suffixes routed to the CDM converter.
var CDMExtensions = []string{".manifest.cdm.json", ".cdm.json", "model.json"}

// DetectFormat guesses the source format from the path, falling back to
// content sniffing for bare .json files. Returns "" when undecidable.
func DetectFormat(path string) string {
	lower := strings.ToLower(filepath.Base(path))

	for _, suffix := range CDMExtensions {
		if strings.HasSuffix(lower, suffix) {
			return "cdm"
		}
	}
	for _, ext := range RDFExtensions {
		if strings.HasSuffix(lower, ext) {
			return "rdf"
		}
	}
	if strings.HasSuffix(lower, ".json") {
		return sniffJSON(path)
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		// Directories hold DTDL interface sets or CDM corpora; prefer DTDL
		// unless a manifest is present.
		if matches, _ := filepath.Glob(filepath.Join(path, "*.manifest.cdm.json")); len(matches) > 0 {
			return "cdm"
		}
		return "dtdl"
	}
	return ""
}

// sniffJSON distinguishes DTDL documents from CDM model.json-style content.
func sniffJSON(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "dtdl"
	}
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	switch {
	case bytes.Contains(head, []byte("dtmi:dtdl:context")), bytes.Contains(head, []byte(`"@id"`)):
		return "dtdl"
	case bytes.Contains(head, []byte(`"jsonSchemaSemanticVersion"`)), bytes.Contains(head, []byte(`"entities"`)):
		return "cdm"
	default:
		return "dtdl"
	}
}
