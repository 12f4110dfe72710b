package model

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSuccessRate_Empty(t *testing.T) {
	r := &ConversionResult{}
	require.Equal(t, float64(100), r.SuccessRate())
}

func TestSuccessRate_Mixed(t *testing.T) {
	r := &ConversionResult{
		EntityTypes:       []*EntityType{{ID: "1"}, {ID: "2"}},
		RelationshipTypes: []*RelationshipType{{ID: "3"}},
		SkippedItems:      []SkippedItem{{Kind: "property", Name: "x", Reason: "missing domain and range"}},
	}
	require.InDelta(t, 75.0, r.SuccessRate(), 0.001)
}

func TestAddProperty_Routing(t *testing.T) {
	e := &EntityType{ID: "1", Name: "Sensor"}
	e.AddProperty(&EntityTypeProperty{ID: "10", Name: "serial", ValueType: ValueString})
	e.AddProperty(&EntityTypeProperty{ID: "11", Name: "temperature", ValueType: ValueDouble, Timeseries: true})

	require.Len(t, e.Properties, 1)
	require.Len(t, e.TimeseriesProperties, 1)
	require.Equal(t, "temperature", e.TimeseriesProperties[0].Name)
	require.NotNil(t, e.PropertyByName("temperature"))
	require.Nil(t, e.Property("11")) // timeseries properties are not in the keyed set
}

func TestIDGenerator_Deterministic(t *testing.T) {
	a := NewIDGenerator(0)
	b := NewIDGenerator(0)
	require.Equal(t, a.For("dtmi:com:example:Thermostat;1"), b.For("dtmi:com:example:Thermostat;1"))
	// Same key on the same generator returns the same ID.
	require.Equal(t, a.For("dtmi:com:example:Thermostat;1"), a.For("dtmi:com:example:Thermostat;1"))
	require.NotEqual(t, a.For("dtmi:com:example:Thermostat;1"), a.For("dtmi:com:example:Thermostat;2"))
}

func TestIDGenerator_Range(t *testing.T) {
	g := NewIDGenerator(0)
	for _, id := range []string{g.Next(), g.For("urn:a"), g.For("urn:b")} {
		n, err := strconv.ParseInt(id, 10, 64)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, DefaultIDPrefix)
		require.Len(t, id, 13)
	}
}

func TestIDGenerator_NoCollisions(t *testing.T) {
	g := NewIDGenerator(0)
	seen := map[string]struct{}{}
	for i := 0; i < 2000; i++ {
		id := g.For("urn:example:" + strconv.Itoa(i))
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Person":              "Person",
		"has name":            "has_name",
		"Señal-Térmica":       "Senal_Termica",
		"123abc":              "T_123abc",
		"":                    "Unnamed",
		"__weird__":           "weird",
		"a..b":                "a_b",
		"dtmi:com:example;1":  "dtmi_com_example_1",
		"http://x.org/T#Name": "http_x_org_T_Name",
	}
	for in, want := range cases {
		require.Equal(t, want, SanitizeName(in), "input %q", in)
	}
}

func TestSanitizeWithLimit(t *testing.T) {
	long := SanitizeWithLimit("ThisIsAVeryLongDisplayNameThatGoesOnAndOnAndOnAndOnAndOnAndOnAndOnAndOnAndOnAndOnAndOnAndOn", 90)
	require.LessOrEqual(t, len(long), 90)
}

func TestLocalName(t *testing.T) {
	require.Equal(t, "Person", LocalName("http://example.org/ontology#Person"))
	require.Equal(t, "Person", LocalName("http://example.org/ontology/Person"))
	require.Equal(t, "Person", LocalName("ex:Person"))
}
