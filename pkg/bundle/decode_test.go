package bundle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ontoforge/ontoforge/pkg/model"
)

func TestDecode_InvertsBuild(t *testing.T) {
	parent := &model.EntityType{ID: "100", Name: "Asset", EntityIDParts: []string{"101"}}
	parent.AddProperty(&model.EntityTypeProperty{ID: "101", Name: "assetId", ValueType: model.ValueString})
	child := &model.EntityType{ID: "200", Name: "Pump", BaseEntityTypeID: "100"}
	rel := &model.RelationshipType{
		ID: "300", Name: "feeds",
		Source: model.RelationshipEnd{EntityTypeID: "200"},
		Target: model.RelationshipEnd{EntityTypeID: "100"},
	}
	in := &model.ConversionResult{
		EntityTypes:       []*model.EntityType{parent, child},
		RelationshipTypes: []*model.RelationshipType{rel},
	}

	def, err := Build(in, "Plant")
	require.NoError(t, err)

	out, displayName, err := Decode(def)
	require.NoError(t, err)
	require.Equal(t, "Plant", displayName)
	require.Len(t, out.EntityTypes, 2)
	require.Len(t, out.RelationshipTypes, 1)

	asset := out.EntityByName("Asset")
	require.NotNil(t, asset)
	require.Equal(t, []string{"101"}, asset.EntityIDParts)
	require.Equal(t, "assetId", asset.Properties[0].Name)
	require.Equal(t, "100", out.EntityByName("Pump").BaseEntityTypeID)
	require.Equal(t, "feeds", out.RelationshipTypes[0].Name)

	// Rebuilding the decoded model yields the identical bundle.
	rebuilt, err := Build(out, displayName)
	require.NoError(t, err)
	require.Equal(t, def.Hash(), rebuilt.Hash())
}

func TestDecode_RejectsUnknownPayloadType(t *testing.T) {
	def := &Definition{Parts: []Part{{Path: ".platform", Payload: "e30=", PayloadType: "External"}}}
	_, _, err := Decode(def)
	require.Error(t, err)
	require.Contains(t, err.Error(), "payload type")
}
