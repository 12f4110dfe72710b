package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ontoforge/ontoforge/pkg/cdm"
	"github.com/ontoforge/ontoforge/pkg/config"
	"github.com/ontoforge/ontoforge/pkg/convert"
	"github.com/ontoforge/ontoforge/pkg/dtdl"
	"github.com/ontoforge/ontoforge/pkg/fabric"
	"github.com/ontoforge/ontoforge/pkg/logging"
	"github.com/ontoforge/ontoforge/pkg/rdf"
	"github.com/ontoforge/ontoforge/pkg/report"
	"github.com/ontoforge/ontoforge/pkg/safety"
)

// app bundles the pieces every command needs: configuration and the logger
// built from it.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	closer io.Closer
	stdout io.Writer
	stderr io.Writer
}

func newApp(configPath string, stdout, stderr io.Writer) (*app, error) {
	if configPath != "" {
		abs, err := safety.ValidateInputPath(configPath, safety.PathOptions{
			AllowedExtensions: []string{".json", ".yaml", ".yml"},
		})
		if err != nil {
			return nil, err
		}
		configPath = abs
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, closer: closer, stdout: stdout, stderr: stderr}, nil
}

func (a *app) Close() {
	_ = a.closer.Close()
}

func (a *app) fail(err error) int {
	a.log.Error("command failed", "error", err)
	_, _ = fmt.Fprintln(a.stderr, "error:", err)
	return exitFor(err)
}

func (a *app) client(opts ...fabric.Option) (*fabric.Client, error) {
	opts = append([]fabric.Option{fabric.WithLogger(a.log)}, opts...)
	return fabric.NewClient(a.cfg.ClientConfig(), opts...)
}

// convertFlags are shared by validate, convert, and upload.
type convertFlags struct {
	format     string
	rdfHint    string
	configPath string
	output     string
	name       string
	journal    string

	streaming  bool
	force      bool
	dryRun     bool
	recursive  bool
	allowUp    bool
	strict     bool
	flattenCmp bool
	cmdsAsProp bool
	flattenInh bool
	looseInfer bool
}

func addConvertFlags(fs *flag.FlagSet, f *convertFlags) {
	fs.StringVar(&f.format, "format", "", "source format: rdf, dtdl, or cdm (default: inferred)")
	fs.StringVar(&f.rdfHint, "rdf-serialization", "", "RDF serialization hint (ttl, rdfxml, jsonld, nt, nq)")
	fs.StringVar(&f.configPath, "config", "", "configuration file")
	fs.StringVar(&f.output, "output", "", "output file")
	fs.StringVar(&f.name, "name", "", "ontology display name (default: derived from the input file)")
	fs.StringVar(&f.journal, "journal", "", "run-journal database (default: user cache dir; \"none\" disables)")
	fs.BoolVar(&f.streaming, "streaming", false, "force the chunked streaming engine")
	fs.BoolVar(&f.force, "force", false, "downgrade memory and quota violations to warnings")
	fs.BoolVar(&f.dryRun, "dry-run", false, "stop before writing or uploading")
	fs.BoolVar(&f.recursive, "recursive", false, "descend into subdirectories")
	fs.BoolVar(&f.allowUp, "allow-relative-up", false, "permit .. components that stay inside the working directory")
	fs.BoolVar(&f.strict, "strict", false, "fail on any degraded or lost construct")
	fs.BoolVar(&f.flattenCmp, "flatten-components", false, "inline DTDL component properties")
	fs.BoolVar(&f.cmdsAsProp, "commands-as-properties", false, "surface DTDL commands as String properties")
	fs.BoolVar(&f.flattenInh, "flatten-inheritance", false, "inline CDM ancestor attributes")
	fs.BoolVar(&f.looseInfer, "loose-inference", false, "infer RDF relationship endpoints from instance usage")
}

func (a *app) options(f *convertFlags) convert.Options {
	return convert.Options{
		IDPrefix:             a.cfg.Ontology.IDPrefix,
		Strict:               f.strict,
		LooseInference:       f.looseInfer,
		FlattenComponents:    f.flattenCmp,
		CommandsAsProperties: f.cmdsAsProp,
		FlattenInheritance:   f.flattenInh,
		Recursive:            f.recursive,
		ForceStreaming:       f.streaming,
		Logger:               a.log,
	}
}

func (a *app) registry(f *convertFlags) *convert.Registry {
	opts := a.options(f)
	reg := convert.NewRegistry()
	reg.Register(rdf.New(opts, f.rdfHint))
	reg.Register(dtdl.New(opts))
	reg.Register(cdm.New(opts))
	return reg
}

func formatExtensions(format string) []string {
	switch format {
	case "rdf":
		return convert.RDFExtensions
	case "cdm":
		return convert.CDMExtensions
	case "dtdl":
		return []string{".json"}
	}
	return nil
}

// resolveInput validates the input path and settles the source format.
func resolveInput(path string, f *convertFlags) (string, string, error) {
	format := f.format
	if format == "" {
		format = convert.DetectFormat(path)
		if format == "" {
			return "", "", fmt.Errorf("%w: cannot infer format of %s; pass --format", convert.ErrUnknownFormat, path)
		}
	}
	abs, err := safety.ValidateInputPath(path, safety.PathOptions{
		AllowedExtensions: formatExtensions(format),
		AllowRelativeUp:   f.allowUp,
	})
	if err != nil {
		return "", "", err
	}
	return abs, format, nil
}

// checkMemory runs the pre-flight feasibility check on regular files.
func (a *app) checkMemory(path string, force bool) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return err
	}
	check, err := safety.CheckMemory(path, force)
	if err != nil {
		return err
	}
	for _, w := range check.Warnings {
		a.log.Warn("memory guard", "warning", w)
		_, _ = fmt.Fprintln(a.stderr, "warning:", w)
	}
	return nil
}

func defaultJournalPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "ontoforge")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	return filepath.Join(dir, "runs.db")
}

// recordRun journals the outcome. Journal failures never fail the command.
func (a *app) recordRun(ctx context.Context, journalPath string, run report.Run) {
	if journalPath == "none" {
		return
	}
	if journalPath == "" {
		journalPath = defaultJournalPath()
	}
	if journalPath == "" {
		return
	}
	j, err := report.OpenJournal(journalPath)
	if err != nil {
		a.log.Warn("run journal unavailable", "path", journalPath, "error", err)
		return
	}
	defer j.Close()
	if _, err := j.Record(ctx, run); err != nil {
		a.log.Warn("run journal write failed", "error", err)
	}
}

// displayNameFor derives the ontology display name from the input when no
// --name is given.
func displayNameFor(f *convertFlags, inputPath string) string {
	if f.name != "" {
		return fabric.SanitizeDisplayName(f.name)
	}
	base := filepath.Base(inputPath)
	for ext := filepath.Ext(base); ext != ""; ext = filepath.Ext(base) {
		base = base[:len(base)-len(ext)]
	}
	return fabric.SanitizeDisplayName(base)
}
