// Command ontoforge converts RDF/OWL, DTDL, and CDM schemas into Fabric
// ontology bundles and manages the resulting ontologies in a workspace.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ontoforge/ontoforge/pkg/cdm"
	"github.com/ontoforge/ontoforge/pkg/compliance"
	"github.com/ontoforge/ontoforge/pkg/convert"
	"github.com/ontoforge/ontoforge/pkg/dtdl"
	"github.com/ontoforge/ontoforge/pkg/fabric"
	"github.com/ontoforge/ontoforge/pkg/limits"
	"github.com/ontoforge/ontoforge/pkg/rdf"
	"github.com/ontoforge/ontoforge/pkg/safety"
)

// Exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitBadInput  = 2
	exitCancelled = 130
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, separated from main for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return exitBadInput
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[1] {
	case "validate":
		return runValidate(ctx, args[2:], stdout, stderr)
	case "convert":
		return runConvert(ctx, args[2:], stdout, stderr)
	case "upload":
		return runUpload(ctx, args[2:], stdout, stderr)
	case "export":
		return runExport(ctx, args[2:], stdout, stderr)
	case "compare":
		return runCompare(ctx, args[2:], stdout, stderr)
	case "list":
		return runList(ctx, args[2:], stdout, stderr)
	case "get":
		return runGet(ctx, args[2:], stdout, stderr)
	case "delete":
		return runDelete(ctx, args[2:], stdout, stderr)
	case "test":
		return runTest(ctx, args[2:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return exitOK
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", args[1])
		usage(stderr)
		return exitBadInput
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprint(w, `Usage: ontoforge <command> [flags] [args]

Conversion:
  validate <input>         check a schema without converting
  convert  <input>         build a Fabric definition bundle
  upload   <input>         convert and create-or-update in the workspace
  export   [bundle.json]   render a bundle (local or --id remote) as Turtle
  compare  <a> <b>         diff two schemas by class and property URIs

Fleet:
  list                     list ontologies in the workspace
  get                      fetch one ontology (--id)
  delete                   delete one ontology (--id)
  test                     check connectivity and credentials

Run "ontoforge <command> -h" for command flags.
`)
}

// exitFor maps an error onto the documented exit codes: 130 for
// cancellation, 2 for input and validation failures, 1 otherwise.
func exitFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return exitCancelled
	case isInputError(err):
		return exitBadInput
	default:
		return exitFailure
	}
}

func isInputError(err error) bool {
	inputErrors := []error{
		safety.ErrInvalidInput, safety.ErrPathTraversal, safety.ErrSymlinkRejected,
		safety.ErrNotFound, safety.ErrPermissionDenied, safety.ErrOutsideWorkingDirectory,
		safety.ErrFileTooLarge, safety.ErrMemoryExceeded,
		rdf.ErrInvalidSyntax, rdf.ErrEmptyGraph, rdf.ErrUnsupportedFormat,
		dtdl.ErrNotDTDL, dtdl.ErrUnsupportedContext, dtdl.ErrMalformedDocument,
		dtdl.ErrInvalidDTMI, dtdl.ErrInheritanceTooDeep,
		cdm.ErrNotCDM, cdm.ErrMalformedDocument, cdm.ErrUnresolvablePath,
		limits.ErrLimitExceeded, compliance.ErrStrictViolation, convert.ErrUnknownFormat,
	}
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	var apiErr *fabric.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != 429
	}
	return false
}
