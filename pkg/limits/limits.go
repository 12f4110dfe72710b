// Package limits enforces the Fabric service quotas and referential
// integrity of a conversion result before upload.
package limits

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/ontoforge/ontoforge/pkg/model"
)

// ErrLimitExceeded aggregates fatal quota or integrity violations.
var ErrLimitExceeded = errors.New("ontology exceeds Fabric limits")

// Service quotas.
const (
	MaxNameLength          = 256
	MaxPropertiesPerEntity = 100
	MaxEntityTypes         = 1000
	MaxRelationshipTypes   = 500
	MaxEntityIDParts       = 10
	MaxDefinitionBytes     = 1024 * 1024
	WarnDefinitionBytes    = 800 * 1024
)

// warnFraction is the quota share that triggers an early warning.
const warnFraction = 0.9

// Severity grades an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one limit or integrity finding.
type Issue struct {
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	Subject  string   `json:"subject,omitempty"`
	Message  string   `json:"message"`
}

// Result collects the findings of one validation pass.
type Result struct {
	Issues []Issue `json:"issues"`
}

// Errors returns the fatal findings.
func (r *Result) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings returns the non-fatal findings.
func (r *Result) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

func (r *Result) filter(s Severity) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == s {
			out = append(out, i)
		}
	}
	return out
}

// Err returns ErrLimitExceeded wrapped with the first fatal finding, or nil.
func (r *Result) Err() error {
	errs := r.Errors()
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s (%d fatal issues)", ErrLimitExceeded, errs[0].Message, len(errs))
}

func (r *Result) add(sev Severity, category, subject, format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{
		Severity: sev,
		Category: category,
		Subject:  subject,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Options tunes a validation pass.
type Options struct {
	// DefinitionBytes is the serialized bundle size; 0 skips the size check.
	DefinitionBytes int64
	// Force downgrades quota breaches to warnings. Integrity violations
	// (dangling references, self-inheritance) stay fatal.
	Force bool
}

// Validate checks quotas and referential integrity of a conversion result.
func Validate(result *model.ConversionResult, opts Options) *Result {
	r := &Result{}

	quotaSeverity := SeverityError
	if opts.Force {
		quotaSeverity = SeverityWarning
	}

	r.checkQuota(quotaSeverity, "entity types", "", len(result.EntityTypes), MaxEntityTypes)
	r.checkQuota(quotaSeverity, "relationship types", "", len(result.RelationshipTypes), MaxRelationshipTypes)

	entityByID := make(map[string]*model.EntityType, len(result.EntityTypes))
	for _, e := range result.EntityTypes {
		entityByID[e.ID] = e
	}

	for _, e := range result.EntityTypes {
		r.checkName(quotaSeverity, "entity type name", e.Name)
		r.checkQuota(quotaSeverity, "properties", e.Name, len(e.AllProperties()), MaxPropertiesPerEntity)
		for _, p := range e.AllProperties() {
			r.checkName(quotaSeverity, "property name", e.Name+"."+p.Name)
		}

		r.checkIdentity(quotaSeverity, e)

		if e.BaseEntityTypeID != "" {
			if e.BaseEntityTypeID == e.ID {
				r.add(SeverityError, "inheritance", e.Name, "entity type %q inherits from itself", e.Name)
			} else if _, ok := entityByID[e.BaseEntityTypeID]; !ok {
				r.add(SeverityError, "inheritance", e.Name,
					"entity type %q has base %s, which is not in the bundle", e.Name, e.BaseEntityTypeID)
			}
		}
		if e.DisplayNamePropertyID != "" {
			switch p := e.Property(e.DisplayNamePropertyID); {
			case p == nil:
				r.add(SeverityError, "display name", e.Name,
					"entity type %q display name property %s does not exist", e.Name, e.DisplayNamePropertyID)
			case p.ValueType != model.ValueString:
				r.add(SeverityError, "display name", e.Name,
					"entity type %q display name property %q is %s; it must be String", e.Name, p.Name, p.ValueType)
			}
		}
	}

	for _, rel := range result.RelationshipTypes {
		r.checkName(quotaSeverity, "relationship name", rel.Name)
		_, okSrc := entityByID[rel.Source.EntityTypeID]
		_, okTgt := entityByID[rel.Target.EntityTypeID]
		if !okSrc || !okTgt {
			r.add(SeverityError, "relationship", rel.Name,
				"relationship %q references entity types outside the bundle", rel.Name)
			continue
		}
		if rel.Source.EntityTypeID == rel.Target.EntityTypeID {
			r.add(SeverityWarning, "relationship", rel.Name,
				"relationship %q is self-referential", rel.Name)
		}
	}

	r.checkSize(quotaSeverity, opts.DefinitionBytes)
	return r
}

func (r *Result) checkQuota(sev Severity, category, subject string, count, limit int) {
	switch {
	case count > limit:
		r.add(sev, category, subject, "%s count %d exceeds the limit of %d", category, count, limit)
	case float64(count) >= warnFraction*float64(limit):
		r.add(SeverityWarning, category, subject, "%s count %d is at %d%% of the limit of %d",
			category, count, count*100/limit, limit)
	}
}

func (r *Result) checkName(sev Severity, category, name string) {
	if len(name) > MaxNameLength {
		r.add(sev, category, name, "%s exceeds %d characters (%d)", category, MaxNameLength, len(name))
	}
}

func (r *Result) checkIdentity(sev Severity, e *model.EntityType) {
	if len(e.EntityIDParts) > MaxEntityIDParts {
		r.add(sev, "entity id parts", e.Name,
			"entity type %q declares %d id parts; the limit is %d", e.Name, len(e.EntityIDParts), MaxEntityIDParts)
	}
	for _, partID := range e.EntityIDParts {
		p := e.Property(partID)
		if p == nil {
			r.add(SeverityError, "entity id parts", e.Name,
				"entity type %q id part %s does not exist", e.Name, partID)
			continue
		}
		if !p.ValueType.KeyCompatible() {
			r.add(SeverityError, "entity id parts", e.Name,
				"entity type %q id part %q is %s; id parts must be String or BigInt", e.Name, p.Name, p.ValueType)
		}
	}
	if len(e.EntityIDParts) == 0 {
		r.add(SeverityWarning, "entity id parts", e.Name,
			"entity type %q has no id parts; instances cannot be addressed", e.Name)
	}
}

func (r *Result) checkSize(sev Severity, size int64) {
	switch {
	case size <= 0:
	case size > MaxDefinitionBytes:
		r.add(sev, "definition size", "",
			"definition size %s exceeds the limit of %s",
			humanize.IBytes(uint64(size)), humanize.IBytes(MaxDefinitionBytes))
	case size > WarnDefinitionBytes:
		r.add(SeverityWarning, "definition size", "",
			"definition size %s is approaching the limit of %s",
			humanize.IBytes(uint64(size)), humanize.IBytes(MaxDefinitionBytes))
	}
}
