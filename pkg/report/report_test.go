package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ontoforge/ontoforge/pkg/compliance"
	"github.com/ontoforge/ontoforge/pkg/limits"
	"github.com/ontoforge/ontoforge/pkg/model"
)

func sampleResult() *model.ConversionResult {
	e := &model.EntityType{ID: "1", Name: "Machine"}
	e.AddProperty(&model.EntityTypeProperty{ID: "2", Name: "serial", ValueType: model.ValueString})
	r := &model.ConversionResult{EntityTypes: []*model.EntityType{e}}
	r.Skip("class", "Blank", "anonymous class has no URI", "")
	return r
}

func TestBuild_CleanResultImportsSeamlessly(t *testing.T) {
	e := &model.EntityType{ID: "1", Name: "Machine"}
	result := &model.ConversionResult{EntityTypes: []*model.EntityType{e}}

	rep := Build("plant.ttl", result, nil, &limits.Result{})
	require.True(t, rep.CanImportSeamlessly)
	require.Zero(t, rep.TotalIssues)
	require.Contains(t, rep.Summary, "1 entity types")
	require.Contains(t, rep.Summary, "100.0%")
}

func TestBuild_AggregatesSources(t *testing.T) {
	result := sampleResult()

	lim := &limits.Result{}
	lim.Issues = append(lim.Issues,
		limits.Issue{Severity: limits.SeverityError, Category: "name", Subject: "Machine", Message: "name too long"},
		limits.Issue{Severity: limits.SeverityWarning, Category: "quota", Subject: "Machine", Message: "near property limit"},
	)

	rec := compliance.NewRecorder("rdf")
	rec.Observe("owl:Restriction", "", "http://example.org/x")
	comp := rec.Report(nil)

	rep := Build("plant.ttl", result, comp, lim)
	require.False(t, rep.CanImportSeamlessly)
	require.Equal(t, rep.TotalIssues, len(rep.Issues))
	require.Equal(t, 1, rep.IssuesBySeverity[SeverityError])
	require.Equal(t, 2, rep.IssuesByCategory[CategoryLimits])
	require.Equal(t, 1, rep.IssuesByCategory[CategorySkipped])
	require.GreaterOrEqual(t, rep.IssuesByCategory[CategoryCompliance], 1)
}

func TestBuild_SkipsBlockSeamlessImport(t *testing.T) {
	rep := Build("plant.ttl", sampleResult(), nil, nil)
	require.False(t, rep.CanImportSeamlessly)
	require.Equal(t, 1, rep.IssuesByCategory[CategorySkipped])
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	rep := Build("plant.ttl", sampleResult(), nil, nil)
	require.NoError(t, rep.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var loaded ValidationReport
	require.NoError(t, json.Unmarshal(data, &loaded))
	require.Equal(t, rep.FilePath, loaded.FilePath)
	require.Equal(t, rep.TotalIssues, loaded.TotalIssues)
	require.Equal(t, rep.CanImportSeamlessly, loaded.CanImportSeamlessly)
}

func TestJournal_RecordAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	first, err := j.Record(ctx, Run{
		Kind: "validate", Source: "plant.ttl", Format: "rdf",
		Success: true, Entities: 4, Relationships: 2,
		StartedAt: time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := j.Record(ctx, Run{Kind: "upload", Source: "plant.ttl", Format: "rdf", Success: false, Message: "breaker open"})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	runs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "upload", runs[0].Kind)
	require.Equal(t, "validate", runs[1].Kind)
	require.False(t, runs[0].Success)
	require.Equal(t, "breaker open", runs[0].Message)
}

func TestJournal_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	_, err = j.Record(context.Background(), Run{Kind: "convert", Source: "a.json", Format: "dtdl", Success: true})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j2, err := OpenJournal(path)
	require.NoError(t, err)
	defer j2.Close()
	runs, err := j2.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "convert", runs[0].Kind)
}
