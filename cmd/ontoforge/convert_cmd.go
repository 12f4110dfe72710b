package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ontoforge/ontoforge/pkg/bundle"
	"github.com/ontoforge/ontoforge/pkg/compliance"
	"github.com/ontoforge/ontoforge/pkg/limits"
	"github.com/ontoforge/ontoforge/pkg/model"
	"github.com/ontoforge/ontoforge/pkg/rdf"
	"github.com/ontoforge/ontoforge/pkg/report"
	"github.com/ontoforge/ontoforge/pkg/safety"
)

// conversion is the shared outcome of the validate/convert/upload pipeline.
type conversion struct {
	path   string
	format string
	result *model.ConversionResult
	comp   *compliance.Report
	lim    *limits.Result
	def    *bundle.Definition
	rep    *report.ValidationReport
}

// runPipeline validates the input, converts it, serializes the bundle, and
// checks Fabric limits. Hard failures (unreadable input, parse errors,
// strict-mode violations) come back as an error; limit findings live in the
// returned conversion for the caller to judge.
func (a *app) runPipeline(ctx context.Context, input string, f *convertFlags) (*conversion, error) {
	path, format, err := resolveInput(input, f)
	if err != nil {
		return nil, err
	}
	if err := a.checkMemory(path, f.force); err != nil {
		return nil, err
	}

	conv, err := a.registry(f).Get(format)
	if err != nil {
		return nil, err
	}
	result, comp, err := conv.Convert(ctx, path)
	if err != nil {
		return nil, err
	}
	if f.strict {
		if err := comp.CheckStrict(); err != nil {
			return nil, err
		}
	}

	def, err := bundle.Build(result, displayNameFor(f, path))
	if err != nil {
		return nil, err
	}
	lim := limits.Validate(result, limits.Options{DefinitionBytes: def.SizeBytes(), Force: f.force})

	c := &conversion{path: path, format: format, result: result, comp: comp, lim: lim, def: def}
	c.rep = report.Build(path, result, comp, lim)
	return c, nil
}

func (a *app) printOutcome(c *conversion) {
	_, _ = fmt.Fprintln(a.stdout, c.rep.Summary)
	for _, issue := range c.rep.Issues {
		_, _ = fmt.Fprintf(a.stdout, "  [%s/%s] %s\n", issue.Severity, issue.Category, issue.Message)
	}
}

func (a *app) journalOutcome(ctx context.Context, kind string, c *conversion, f *convertFlags, success bool, message string) {
	a.recordRun(ctx, f.journal, report.Run{
		Kind:          kind,
		Source:        c.path,
		Format:        c.format,
		Success:       success,
		Entities:      len(c.result.EntityTypes),
		Relationships: len(c.result.RelationshipTypes),
		Skipped:       len(c.result.SkippedItems),
		Issues:        c.rep.TotalIssues,
		Message:       message,
	})
}

func runValidate(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var f convertFlags
	addConvertFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "usage: ontoforge validate [flags] <input>")
		return exitBadInput
	}

	a, err := newApp(f.configPath, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return exitFor(err)
	}
	defer a.Close()

	c, err := a.runPipeline(ctx, fs.Arg(0), &f)
	if err != nil {
		return a.fail(err)
	}
	a.printOutcome(c)
	if f.output != "" {
		out, err := safety.ValidateOutputPath(f.output, safety.PathOptions{AllowRelativeUp: f.allowUp})
		if err != nil {
			return a.fail(err)
		}
		if err := c.rep.Save(out); err != nil {
			return a.fail(err)
		}
	}

	limErr := c.lim.Err()
	a.journalOutcome(ctx, "validate", c, &f, limErr == nil, errText(limErr))
	return exitFor(limErr)
}

func runConvert(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var f convertFlags
	addConvertFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "usage: ontoforge convert [flags] <input>")
		return exitBadInput
	}

	a, err := newApp(f.configPath, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return exitFor(err)
	}
	defer a.Close()

	c, err := a.runPipeline(ctx, fs.Arg(0), &f)
	if err != nil {
		return a.fail(err)
	}
	a.printOutcome(c)
	if limErr := c.lim.Err(); limErr != nil {
		a.journalOutcome(ctx, "convert", c, &f, false, errText(limErr))
		return a.fail(limErr)
	}
	if f.dryRun {
		_, _ = fmt.Fprintf(a.stdout, "dry run: bundle %s (%d parts) not written\n", c.def.Hash()[:12], len(c.def.Parts))
		return exitOK
	}

	data, err := json.MarshalIndent(c.def, "", "  ")
	if err != nil {
		return a.fail(err)
	}
	if f.output == "" {
		_, _ = a.stdout.Write(append(data, '\n'))
	} else {
		out, err := safety.ValidateOutputPath(f.output, safety.PathOptions{AllowRelativeUp: f.allowUp})
		if err != nil {
			return a.fail(err)
		}
		if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
			return a.fail(err)
		}
		_, _ = fmt.Fprintf(a.stdout, "wrote %s (%d parts, hash %s)\n", out, len(c.def.Parts), c.def.Hash()[:12])
	}
	a.journalOutcome(ctx, "convert", c, &f, true, "")
	return exitOK
}

func runUpload(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var f convertFlags
	var description string
	addConvertFlags(fs, &f)
	fs.StringVar(&description, "description", "", "ontology description")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "usage: ontoforge upload [flags] <input>")
		return exitBadInput
	}

	a, err := newApp(f.configPath, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return exitFor(err)
	}
	defer a.Close()

	c, err := a.runPipeline(ctx, fs.Arg(0), &f)
	if err != nil {
		return a.fail(err)
	}
	a.printOutcome(c)
	if limErr := c.lim.Err(); limErr != nil {
		a.journalOutcome(ctx, "upload", c, &f, false, errText(limErr))
		return a.fail(limErr)
	}
	if f.dryRun {
		_, _ = fmt.Fprintln(a.stdout, "dry run: bundle valid, not uploaded")
		return exitOK
	}

	client, err := a.client()
	if err != nil {
		return a.fail(err)
	}
	item, err := client.CreateOrUpdate(ctx, displayNameFor(&f, c.path), description, c.def, true)
	if err != nil {
		a.journalOutcome(ctx, "upload", c, &f, false, errText(err))
		return a.fail(err)
	}
	_, _ = fmt.Fprintf(a.stdout, "uploaded %s as %s (id %s)\n", c.path, item.DisplayName, item.ID)
	a.journalOutcome(ctx, "upload", c, &f, true, "id "+item.ID)
	return exitOK
}

func runExport(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var configPath, id, output, base string
	fs.StringVar(&configPath, "config", "", "configuration file")
	fs.StringVar(&id, "id", "", "export an ontology from the workspace by id")
	fs.StringVar(&output, "output", "", "output Turtle file (default: stdout)")
	fs.StringVar(&base, "base", rdf.DefaultExportBase, "base URI for exported terms")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	if (id == "") == (fs.NArg() != 1) {
		_, _ = fmt.Fprintln(stderr, "usage: ontoforge export [flags] <bundle.json> | ontoforge export --id <id>")
		return exitBadInput
	}

	a, err := newApp(configPath, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return exitFor(err)
	}
	defer a.Close()

	var def *bundle.Definition
	if id != "" {
		client, err := a.client()
		if err != nil {
			return a.fail(err)
		}
		if def, err = client.GetDefinition(ctx, id); err != nil {
			return a.fail(err)
		}
	} else {
		path, err := safety.ValidateInputPath(fs.Arg(0), safety.PathOptions{AllowedExtensions: []string{".json"}})
		if err != nil {
			return a.fail(err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return a.fail(err)
		}
		def = &bundle.Definition{}
		if err := json.Unmarshal(data, def); err != nil {
			return a.fail(fmt.Errorf("%w: %v", safety.ErrInvalidInput, err))
		}
	}

	result, _, err := bundle.Decode(def)
	if err != nil {
		return a.fail(err)
	}

	w := a.stdout
	if output != "" {
		out, err := safety.ValidateOutputPath(output, safety.PathOptions{})
		if err != nil {
			return a.fail(err)
		}
		file, err := os.Create(out)
		if err != nil {
			return a.fail(err)
		}
		defer file.Close()
		w = file
	}
	if err := rdf.ExportTurtle(result, w, base); err != nil {
		return a.fail(err)
	}
	return exitOK
}

func runCompare(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var f convertFlags
	addConvertFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	if fs.NArg() != 2 {
		_, _ = fmt.Fprintln(stderr, "usage: ontoforge compare [flags] <a> <b>")
		return exitBadInput
	}

	a, err := newApp(f.configPath, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return exitFor(err)
	}
	defer a.Close()

	var results [2]*model.ConversionResult
	for i := 0; i < 2; i++ {
		c, err := a.runPipeline(ctx, fs.Arg(i), &f)
		if err != nil {
			return a.fail(err)
		}
		results[i] = c.result
	}

	diff := rdf.CompareOntologies(results[0], results[1])
	if diff.Equal() {
		_, _ = fmt.Fprintln(a.stdout, "ontologies are equivalent")
		return exitOK
	}
	printOnly := func(label string, names []string) {
		for _, n := range names {
			_, _ = fmt.Fprintf(a.stdout, "  %s: %s\n", label, n)
		}
	}
	printOnly("class only in a", diff.ClassesOnlyInA)
	printOnly("class only in b", diff.ClassesOnlyInB)
	printOnly("property only in a", diff.DataPropsOnlyInA)
	printOnly("property only in b", diff.DataPropsOnlyInB)
	printOnly("relationship only in a", diff.ObjectPropsOnlyInA)
	printOnly("relationship only in b", diff.ObjectPropsOnlyInB)
	return exitFailure
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
