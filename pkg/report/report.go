// Package report renders conversion and validation outcomes: a persisted
// JSON validation report and a sqlite-backed journal of past runs.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ontoforge/ontoforge/pkg/compliance"
	"github.com/ontoforge/ontoforge/pkg/limits"
	"github.com/ontoforge/ontoforge/pkg/model"
)

// Issue severities, ordered from worst.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Issue categories.
const (
	CategoryLimits     = "limits"
	CategoryCompliance = "compliance"
	CategorySkipped    = "skipped"
	CategoryConversion = "conversion"
)

// Issue is one finding in a validation report.
type Issue struct {
	Severity string `json:"severity"`
	Category string `json:"category"`
	Subject  string `json:"subject,omitempty"`
	Message  string `json:"message"`
}

// ValidationReport is the persisted JSON shape.
type ValidationReport struct {
	FilePath            string         `json:"file_path"`
	Timestamp           time.Time      `json:"timestamp"`
	CanImportSeamlessly bool           `json:"can_import_seamlessly"`
	TotalIssues         int            `json:"total_issues"`
	IssuesBySeverity    map[string]int `json:"issues_by_severity"`
	IssuesByCategory    map[string]int `json:"issues_by_category"`
	Issues              []Issue        `json:"issues"`
	Summary             string         `json:"summary"`
}

// Build folds the outcome of one validation into a report. Any argument but
// the result may be nil. The import is seamless when nothing carries error
// severity and no source construct was lost or skipped.
func Build(filePath string, result *model.ConversionResult, comp *compliance.Report, lim *limits.Result) *ValidationReport {
	rep := &ValidationReport{
		FilePath:         filePath,
		Timestamp:        time.Now().UTC(),
		IssuesBySeverity: map[string]int{},
		IssuesByCategory: map[string]int{},
	}

	if lim != nil {
		for _, issue := range lim.Issues {
			severity := SeverityWarning
			if issue.Severity == limits.SeverityError {
				severity = SeverityError
			}
			rep.add(Issue{Severity: severity, Category: CategoryLimits, Subject: issue.Subject, Message: issue.Message})
		}
	}
	if comp != nil {
		for _, f := range comp.Lost {
			rep.add(Issue{Severity: SeverityWarning, Category: CategoryCompliance, Subject: f.Construct,
				Message: fmt.Sprintf("%s is not representable in the target model", describeFinding(f))})
		}
		for _, f := range comp.Limited {
			rep.add(Issue{Severity: SeverityInfo, Category: CategoryCompliance, Subject: f.Construct,
				Message: fmt.Sprintf("%s converted with limitations", describeFinding(f))})
		}
	}
	if result != nil {
		for _, s := range result.SkippedItems {
			rep.add(Issue{Severity: SeverityWarning, Category: CategorySkipped, Subject: s.Name,
				Message: fmt.Sprintf("%s %q skipped: %s", s.Kind, s.Name, s.Reason)})
		}
		for _, w := range result.Warnings {
			if w.Code == model.WarnGeneral {
				rep.add(Issue{Severity: SeverityWarning, Category: CategoryConversion, Subject: w.Construct, Message: w.Message})
			}
		}
	}

	rep.TotalIssues = len(rep.Issues)
	rep.CanImportSeamlessly = rep.IssuesBySeverity[SeverityError] == 0 &&
		rep.IssuesByCategory[CategoryCompliance] == 0 &&
		rep.IssuesByCategory[CategorySkipped] == 0
	rep.Summary = rep.summarize(result)
	return rep
}

func (rep *ValidationReport) add(issue Issue) {
	rep.Issues = append(rep.Issues, issue)
	rep.IssuesBySeverity[issue.Severity]++
	rep.IssuesByCategory[issue.Category]++
}

func (rep *ValidationReport) summarize(result *model.ConversionResult) string {
	if result == nil {
		return fmt.Sprintf("%d issues", rep.TotalIssues)
	}
	return fmt.Sprintf("%d entity types, %d relationship types, %d skipped, %d issues, success rate %.1f%%",
		len(result.EntityTypes), len(result.RelationshipTypes), len(result.SkippedItems),
		rep.TotalIssues, result.SuccessRate())
}

func describeFinding(f compliance.Finding) string {
	if f.Name != "" {
		return fmt.Sprintf("%s %q", f.Construct, f.Name)
	}
	return f.Construct
}

// Save writes the report as indented JSON.
func (rep *ValidationReport) Save(path string) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
