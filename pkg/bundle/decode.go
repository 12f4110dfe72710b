package bundle

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ontoforge/ontoforge/pkg/model"
)

// Decode is the inverse of Build: it reconstructs the intermediate model and
// display name from a definition bundle, for export and comparison of
// ontologies already living in the service.
func Decode(d *Definition) (*model.ConversionResult, string, error) {
	result := &model.ConversionResult{}
	displayName := ""

	for _, part := range d.Parts {
		payload, err := decodePayload(part)
		if err != nil {
			return nil, "", fmt.Errorf("part %s: %w", part.Path, err)
		}
		switch {
		case part.Path == platformPath:
			var meta platformMetadata
			if err := json.Unmarshal(payload, &meta); err != nil {
				return nil, "", fmt.Errorf("part %s: %w", part.Path, err)
			}
			displayName = meta.Metadata.DisplayName
		case strings.HasPrefix(part.Path, "EntityTypes/"):
			var e model.EntityType
			if err := json.Unmarshal(payload, &e); err != nil {
				return nil, "", fmt.Errorf("part %s: %w", part.Path, err)
			}
			result.EntityTypes = append(result.EntityTypes, &e)
		case strings.HasPrefix(part.Path, "RelationshipTypes/"):
			var r model.RelationshipType
			if err := json.Unmarshal(payload, &r); err != nil {
				return nil, "", fmt.Errorf("part %s: %w", part.Path, err)
			}
			result.RelationshipTypes = append(result.RelationshipTypes, &r)
		}
	}
	return result, displayName, nil
}

func decodePayload(part Part) ([]byte, error) {
	if part.PayloadType != PayloadTypeInlineBase64 {
		return nil, fmt.Errorf("unsupported payload type %q", part.PayloadType)
	}
	return base64.StdEncoding.DecodeString(part.Payload)
}
