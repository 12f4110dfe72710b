package bundle

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ontoforge/ontoforge/pkg/model"
)

func sampleResult() *model.ConversionResult {
	base := &model.EntityType{ID: "100", Name: "Asset"}
	base.AddProperty(&model.EntityTypeProperty{ID: "100-p", Name: "assetId", ValueType: model.ValueString})
	base.EntityIDParts = []string{"100-p"}

	child := &model.EntityType{ID: "200", Name: "Pump", BaseEntityTypeID: "100"}

	return &model.ConversionResult{
		// Child deliberately listed before its parent.
		EntityTypes: []*model.EntityType{child, base},
		RelationshipTypes: []*model.RelationshipType{
			{ID: "300", Name: "feeds", Source: model.RelationshipEnd{EntityTypeID: "200"}, Target: model.RelationshipEnd{EntityTypeID: "100"}},
		},
	}
}

func TestBuild_PartOrder(t *testing.T) {
	d, err := Build(sampleResult(), "plant")
	require.NoError(t, err)

	paths := make([]string, len(d.Parts))
	for i, p := range d.Parts {
		paths[i] = p.Path
		require.Equal(t, PayloadTypeInlineBase64, p.PayloadType)
	}
	require.Equal(t, []string{
		".platform",
		"definition.json",
		"EntityTypes/100/definition.json",
		"EntityTypes/200/definition.json",
		"RelationshipTypes/300/definition.json",
	}, paths)
}

func TestBuild_PlatformMetadata(t *testing.T) {
	d, err := Build(sampleResult(), "plant")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(d.Part(".platform").Payload)
	require.NoError(t, err)
	require.JSONEq(t, `{"metadata":{"type":"Ontology","displayName":"plant"}}`, string(raw))

	raw, err = base64.StdEncoding.DecodeString(d.Part("definition.json").Payload)
	require.NoError(t, err)
	require.Equal(t, "{}", string(raw))
}

func TestBuild_Deterministic(t *testing.T) {
	a, err := Build(sampleResult(), "plant")
	require.NoError(t, err)
	b, err := Build(sampleResult(), "plant")
	require.NoError(t, err)

	require.Equal(t, a.Parts, b.Parts)
	require.Equal(t, a.Hash(), b.Hash())
}

func TestBuild_HashTracksContent(t *testing.T) {
	a, err := Build(sampleResult(), "plant")
	require.NoError(t, err)

	changed := sampleResult()
	changed.EntityTypes[0].Name = "Compressor"
	b, err := Build(changed, "plant")
	require.NoError(t, err)

	require.NotEqual(t, a.Hash(), b.Hash())
}

func TestBuild_CycleFails(t *testing.T) {
	a := &model.EntityType{ID: "1", Name: "A", BaseEntityTypeID: "2"}
	b := &model.EntityType{ID: "2", Name: "B", BaseEntityTypeID: "1"}
	_, err := Build(&model.ConversionResult{EntityTypes: []*model.EntityType{a, b}}, "x")
	require.ErrorIs(t, err, ErrInheritanceCycle)
}

func TestSizeBytes(t *testing.T) {
	d, err := Build(sampleResult(), "plant")
	require.NoError(t, err)
	require.Greater(t, d.SizeBytes(), int64(0))
}
