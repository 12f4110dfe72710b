package rdf

import (
	"context"
	"fmt"
	"io"
	"os"

	knakk "github.com/knakk/rdf"

	"github.com/ontoforge/ontoforge/pkg/compliance"
	"github.com/ontoforge/ontoforge/pkg/convert"
	"github.com/ontoforge/ontoforge/pkg/model"
)

// structuralPredicates are the predicates that declare schema, as opposed to
// describing instances. Instance data never carries them, so the skeleton
// stays O(entities + properties) regardless of how much instance data the
// file carries.
var structuralPredicates = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range []Term{
		rdfsSubClassOf, rdfsDomain, rdfsRange,
		owlUnionOf, owlIntersectionOf, owlComplementOf, owlOneOf,
		rdfFirst, rdfRest, owlOnClass, owlSomeValuesFrom, owlAllValuesFrom,
		owlOnDataRange, owlInverseOf, owlEquivalentClass, owlImports,
	} {
		set[t.Value] = struct{}{}
	}
	return set
}()

// vocabularyTypes are the rdf:type objects that mark a subject as schema.
// Typing statements over user classes (instance data) are dropped.
var vocabularyTypes = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range []Term{
		owlClass, rdfsClass, rdfProperty, owlDatatypeProperty,
		owlObjectProperty, owlFunctionalProp, owlTransitiveProp,
		owlSymmetricProp, owlRestriction,
	} {
		set[t.Value] = struct{}{}
	}
	return set
}()

// keepStructural decides whether a triple belongs in the skeleton: blank
// subjects (class expressions), vocabulary typing statements, and structural
// predicates.
func keepStructural(t Triple) bool {
	if t.S.IsBlank() {
		return true
	}
	if t.P == rdfType {
		_, vocab := vocabularyTypes[t.O.Value]
		return vocab
	}
	_, structural := structuralPredicates[t.P.Value]
	return structural
}

// convertStreaming is the chunked strategy behind Convert: a filtering scan
// that retains only the schema skeleton, followed by the ordered extraction
// phases with chunk-bounded batching, progress callbacks, and cancellation
// checks at every chunk boundary.
func (c *Converter) convertStreaming(ctx context.Context, path string) (*model.ConversionResult, *compliance.Report, error) {
	format := DetectSerialization(path, c.hint)
	switch format {
	case FormatTurtle, FormatNTriples, FormatNQuads, FormatRDFXML, FormatTriG, FormatN3:
	default:
		// JSON-LD and HTML inputs need full-document expansion; fall back.
		c.opts.Log().Warn("streaming not supported for serialization; loading in memory", "format", string(format))
		g, err := ParseFile(path, c.hint)
		if err != nil {
			return nil, nil, err
		}
		return c.extract(ctx, g)
	}

	chunkSize := c.opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = convert.DefaultChunkSize
	}

	skeleton, total, err := c.scanSkeleton(ctx, path, format, chunkSize)
	if err != nil {
		return nil, nil, err
	}
	if total == 0 {
		return nil, nil, ErrEmptyGraph
	}

	ex := &extraction{
		opts:      c.opts,
		g:         skeleton,
		ids:       model.NewIDGenerator(c.opts.IDPrefix),
		resolver:  NewClassResolver(skeleton),
		result:    &model.ConversionResult{TripleCount: total},
		rec:       compliance.NewRecorder("rdf"),
		entities:  make(map[string]*model.EntityType),
		usedNames: make(map[string]string),
		namespace: c.opts.Namespace,
	}
	if ex.namespace == "" {
		ex.namespace = DefaultNamespace
	}
	if c.opts.LooseInference {
		ex.result.Warn(model.WarnGeneral, "",
			"loose inference is unavailable in streaming mode; instance triples are not retained", "")
	}

	// Phase 1: class discovery.
	ex.discoverClasses()
	ex.wireInheritance()
	c.opts.Report(convert.ProgressEvent{Phase: "class discovery", Processed: len(ex.order)})

	// Phase 2: property batching.
	dataProps := ex.dataPropertySubjects()
	for start := 0; start < len(dataProps); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		end := min(start+chunkSize, len(dataProps))
		for _, uri := range dataProps[start:end] {
			ex.extractDataProperty(uri)
		}
		c.opts.Report(convert.ProgressEvent{Phase: "property batching", Processed: end, Total: len(dataProps)})
	}

	// Phase 3: relationship batching.
	objProps := ex.objectPropertySubjects()
	for start := 0; start < len(objProps); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		end := min(start+chunkSize, len(objProps))
		for _, uri := range objProps[start:end] {
			ex.extractObjectProperty(uri)
		}
		c.opts.Report(convert.ProgressEvent{Phase: "relationship batching", Processed: end, Total: len(objProps)})
	}

	// Phase 4: identifier assignment, once all properties are known.
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	ex.assignIdentifiers()
	ex.observeUnsupported()
	c.opts.Report(convert.ProgressEvent{Phase: "identifier assignment", Processed: len(ex.order)})

	for _, uri := range ex.order {
		ex.result.EntityTypes = append(ex.result.EntityTypes, ex.entities[uri])
	}
	report := ex.rec.Report(ex.result)
	if c.opts.Strict {
		if err := report.CheckStrict(); err != nil {
			return ex.result, report, err
		}
	}
	return ex.result, report, nil
}

// scanSkeleton streams the file twice. The first pass keeps the structural
// triples; the second keeps labels and comments, but only for subjects the
// first pass discovered, so annotation volume is bounded by the schema size
// rather than the instance count.
func (c *Converter) scanSkeleton(ctx context.Context, path string, format Format, chunkSize int) (*Graph, int, error) {
	skeleton := NewGraph()

	total, err := c.scanFile(ctx, path, format, chunkSize, "scan", func(t Triple) {
		if keepStructural(t) {
			skeleton.Add(t)
		}
	})
	if err != nil {
		return nil, 0, err
	}

	// Blank-subject annotations were already kept by the structural pass.
	_, err = c.scanFile(ctx, path, format, chunkSize, "annotation scan", func(t Triple) {
		if t.S.IsBlank() || (t.P != rdfsLabel && t.P != rdfsComment) {
			return
		}
		if skeleton.HasSubject(t.S) {
			skeleton.Add(t)
		}
	})
	if err != nil {
		return nil, 0, err
	}
	return skeleton, total, nil
}

// scanFile decodes every triple in the file through fn, with progress
// reports and cancellation checks at chunk boundaries.
func (c *Converter) scanFile(ctx context.Context, path string, format Format, chunkSize int, phase string, fn func(Triple)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	total := 0
	emit := func(t Triple) error {
		total++
		fn(t)
		if total%chunkSize == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			c.opts.Report(convert.ProgressEvent{Phase: phase, Processed: total})
		}
		return nil
	}

	if format == FormatNQuads {
		dec := knakk.NewQuadDecoder(f, knakk.NQuads)
		for {
			q, err := dec.Decode()
			if err == io.EOF {
				break
			}
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrInvalidSyntax, err)
			}
			if err := emit(Triple{S: convertTerm(q.Subj), P: convertTerm(q.Pred), O: convertTerm(q.Obj)}); err != nil {
				return 0, err
			}
		}
	} else {
		dec := knakk.NewTripleDecoder(f, knakkFormat(format))
		for {
			tr, err := dec.Decode()
			if err == io.EOF {
				break
			}
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrInvalidSyntax, err)
			}
			if err := emit(convertTriple(tr)); err != nil {
				return 0, err
			}
		}
	}
	return total, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
