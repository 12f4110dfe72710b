package compliance

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ontoforge/ontoforge/pkg/model"
)

// ErrStrictViolation is returned when strict mode promotes a limitation or
// loss to an error.
var ErrStrictViolation = errors.New("strict mode: source constructs were degraded or lost")

// Observation is one source construct seen by an extractor.
type Observation struct {
	Construct string `json:"construct"`
	Name      string `json:"name,omitempty"`
	SourceURI string `json:"source_uri,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Finding is an observation joined with its support entry.
type Finding struct {
	Observation
	Level      Level  `json:"level"`
	Workaround string `json:"workaround,omitempty"`
}

// Stats summarizes a report.
type Stats struct {
	Preserved int `json:"preserved"`
	Limited   int `json:"limited"`
	Lost      int `json:"lost"`
}

// Report buckets every observed construct.
type Report struct {
	Dialect   string    `json:"dialect"`
	Preserved []Finding `json:"preserved_features"`
	Limited   []Finding `json:"converted_with_limitations"`
	Lost      []Finding `json:"lost_features"`
	Stats     Stats     `json:"statistics"`
}

// Recorder accumulates observations during one conversion. It is additive:
// extractors append, nothing decides global state until Report is called.
// Not safe for concurrent use; a conversion is single-threaded.
type Recorder struct {
	dialect      string
	observations []Observation
}

// NewRecorder creates a recorder for a source dialect.
func NewRecorder(dialect string) *Recorder {
	return &Recorder{dialect: dialect}
}

// Observe records one construct occurrence.
func (r *Recorder) Observe(construct, name, sourceURI string) {
	r.observations = append(r.observations, Observation{Construct: construct, Name: name, SourceURI: sourceURI})
}

// ObserveDetail records one construct occurrence with extra context, such as
// the JSON encoding of a collapsed complex schema.
func (r *Recorder) ObserveDetail(construct, name, sourceURI, detail string) {
	r.observations = append(r.observations, Observation{Construct: construct, Name: name, SourceURI: sourceURI, Detail: detail})
}

// Report computes the compliance report from the accumulated observations
// and appends the limitation/loss warnings to result.
func (r *Recorder) Report(result *model.ConversionResult) *Report {
	rep := &Report{Dialect: r.dialect}
	for _, obs := range r.observations {
		s := Lookup(r.dialect, obs.Construct)
		f := Finding{Observation: obs, Level: s.Level, Workaround: s.Workaround}
		switch s.Level {
		case Full:
			rep.Preserved = append(rep.Preserved, f)
		case Partial, Metadata:
			rep.Limited = append(rep.Limited, f)
			if result != nil {
				result.Warn(model.WarnConvertedWithLimitations, obs.Construct,
					limitMessage(obs), s.Workaround)
			}
		case None:
			rep.Lost = append(rep.Lost, f)
			if result != nil {
				result.Warn(model.WarnLost, obs.Construct, lossMessage(obs), s.Workaround)
			}
		}
	}
	rep.Stats = Stats{Preserved: len(rep.Preserved), Limited: len(rep.Limited), Lost: len(rep.Lost)}
	sortFindings(rep.Preserved)
	sortFindings(rep.Limited)
	sortFindings(rep.Lost)
	return rep
}

// CheckStrict fails when the report carries any limitation or loss.
func (rep *Report) CheckStrict() error {
	if rep.Stats.Limited == 0 && rep.Stats.Lost == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d limited, %d lost", ErrStrictViolation, rep.Stats.Limited, rep.Stats.Lost)
}

func limitMessage(obs Observation) string {
	if obs.Name != "" {
		return fmt.Sprintf("%s %q converted with limitations", obs.Construct, obs.Name)
	}
	return fmt.Sprintf("%s converted with limitations", obs.Construct)
}

func lossMessage(obs Observation) string {
	if obs.Name != "" {
		return fmt.Sprintf("%s %q cannot be represented", obs.Construct, obs.Name)
	}
	return fmt.Sprintf("%s cannot be represented", obs.Construct)
}

func sortFindings(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Construct != fs[j].Construct {
			return fs[i].Construct < fs[j].Construct
		}
		return fs[i].Name < fs[j].Name
	})
}
