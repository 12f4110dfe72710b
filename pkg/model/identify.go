package model

import "strings"

// AssignIdentifiers picks entityIdParts and displayNamePropertyId for an
// entity from its non-timeseries properties: a key-compatible property whose
// name contains "id", else the first key-compatible property. Display name
// prefers a String property containing "name", else a String key property.
// Entities with neither keep empty slots; the limits validator reports them.
func AssignIdentifiers(e *EntityType) {
	var idProp *EntityTypeProperty
	for _, p := range e.Properties {
		if strings.Contains(strings.ToLower(p.Name), "id") && p.ValueType.KeyCompatible() {
			idProp = p
			break
		}
	}
	if idProp == nil {
		for _, p := range e.Properties {
			if p.ValueType.KeyCompatible() {
				idProp = p
				break
			}
		}
	}
	if idProp != nil {
		e.EntityIDParts = []string{idProp.ID}
	}

	for _, p := range e.Properties {
		if strings.Contains(strings.ToLower(p.Name), "name") && p.ValueType == ValueString {
			e.DisplayNamePropertyID = p.ID
			return
		}
	}
	if idProp != nil && idProp.ValueType == ValueString {
		e.DisplayNamePropertyID = idProp.ID
	}
}
