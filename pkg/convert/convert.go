// Package convert defines the capability every source-format converter
// implements and the registry the CLI dispatches through. Dispatch is a
// registry keyed by format tag, not an inheritance hierarchy; converters
// share the intermediate model but not code.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/ontoforge/ontoforge/pkg/compliance"
	"github.com/ontoforge/ontoforge/pkg/model"
)

// ErrUnknownFormat is returned when no converter is registered for a tag.
var ErrUnknownFormat = errors.New("unknown source format")

// ProgressEvent fires at streaming chunk boundaries and phase transitions.
type ProgressEvent struct {
	Phase     string
	Processed int
	Total     int // 0 when unknown
}

// Options tunes a conversion. The zero value is usable.
type Options struct {
	// IDPrefix seeds the numeric ID range (default 10^12).
	IDPrefix int64
	// Namespace routes emitted types; empty means the converter default.
	Namespace string
	// Strict promotes limitation/loss warnings to errors.
	Strict bool

	// LooseInference lets the RDF converter infer relationship domain/range
	// from observed instance usage. Inferred relationships are flagged in
	// the result. Default off.
	LooseInference bool

	// FlattenComponents inlines DTDL component properties with a
	// "{component}_" prefix instead of emitting a reference property.
	FlattenComponents bool
	// CommandsAsProperties surfaces DTDL commands as synthetic String
	// properties named "command_{name}" instead of skipping them.
	CommandsAsProperties bool

	// FlattenInheritance inlines CDM ancestor attributes into children.
	FlattenInheritance bool

	// Recursive descends into subdirectories when the input is a directory.
	Recursive bool

	// StreamingThresholdBytes switches the RDF converter to the chunked
	// engine above this input size (default 100 MB). Negative disables.
	StreamingThresholdBytes int64
	// ForceStreaming always uses the chunked engine.
	ForceStreaming bool
	// ChunkSize is the streaming batch size (default 10000).
	ChunkSize int
	// Progress receives chunk/phase notifications. May be nil.
	Progress func(ProgressEvent)

	Logger *slog.Logger
}

// Log returns the configured logger or the default one.
func (o Options) Log() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Report sends a progress event if a callback is configured.
func (o Options) Report(ev ProgressEvent) {
	if o.Progress != nil {
		o.Progress(ev)
	}
}

const (
	// DefaultStreamingThreshold activates chunked processing for inputs
	// above 100 MB.
	DefaultStreamingThreshold int64 = 100 * 1024 * 1024
	// DefaultChunkSize is the streaming batch size.
	DefaultChunkSize = 10000
)

// Converter turns one source format into the intermediate model.
type Converter interface {
	// FormatName is the registry tag ("rdf", "dtdl", "cdm").
	FormatName() string
	// Validate checks the input without converting, returning the issues a
	// conversion would report.
	Validate(ctx context.Context, path string) (*model.ConversionResult, *compliance.Report, error)
	// Convert parses, validates, and extracts the input into the
	// intermediate model, with a compliance report on the side.
	Convert(ctx context.Context, path string) (*model.ConversionResult, *compliance.Report, error)
}

// Registry maps format tags to converters. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Converter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Converter)}
}

// Register adds or replaces the converter for its format tag.
func (r *Registry) Register(c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[strings.ToLower(c.FormatName())] = c
}

// Get returns the converter for the tag.
func (r *Registry) Get(format string) (Converter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownFormat, format, strings.Join(r.formatsLocked(), ", "))
	}
	return c, nil
}

// Formats lists registered tags, sorted.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.formatsLocked()
}

func (r *Registry) formatsLocked() []string {
	out := make([]string, 0, len(r.byID))
	for k := range r.byID {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
