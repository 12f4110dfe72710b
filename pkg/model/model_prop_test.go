package model

import (
	"regexp"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,127}$`)

// TestSanitizeName_Laws checks the sanitizer over arbitrary input: every
// output matches the identifier pattern, and sanitizing is idempotent.
func TestSanitizeName_Laws(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("output always matches the identifier pattern", prop.ForAll(
		func(raw string) bool {
			return namePattern.MatchString(SanitizeName(raw))
		},
		gen.AnyString(),
	))

	properties.Property("sanitizing is idempotent", prop.ForAll(
		func(raw string) bool {
			once := SanitizeName(raw)
			return SanitizeName(once) == once
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestSuccessRate_Formula checks the success-rate identity over arbitrary
// counts, including the zero-input case.
func TestSuccessRate_Formula(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("rate is 100·converted/(converted+skipped)", prop.ForAll(
		func(entities, rels, skipped int) bool {
			r := &ConversionResult{}
			for i := 0; i < entities; i++ {
				r.EntityTypes = append(r.EntityTypes, &EntityType{})
			}
			for i := 0; i < rels; i++ {
				r.RelationshipTypes = append(r.RelationshipTypes, &RelationshipType{})
			}
			for i := 0; i < skipped; i++ {
				r.Skip("class", "x", "reason", "")
			}
			converted := entities + rels
			total := converted + skipped
			if total == 0 {
				return r.SuccessRate() == 100
			}
			return r.SuccessRate() == 100*float64(converted)/float64(total)
		},
		gen.IntRange(0, 50),
		gen.IntRange(0, 50),
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}
