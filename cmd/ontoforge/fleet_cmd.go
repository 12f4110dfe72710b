package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
)

func runList(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var configPath string
	var asJSON bool
	fs.StringVar(&configPath, "config", "", "configuration file")
	fs.BoolVar(&asJSON, "json", false, "print the raw item list as JSON")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}

	a, err := newApp(configPath, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return exitFor(err)
	}
	defer a.Close()

	client, err := a.client()
	if err != nil {
		return a.fail(err)
	}
	items, err := client.List(ctx)
	if err != nil {
		return a.fail(err)
	}

	if asJSON {
		data, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return a.fail(err)
		}
		_, _ = a.stdout.Write(append(data, '\n'))
		return exitOK
	}
	if len(items) == 0 {
		_, _ = fmt.Fprintln(a.stdout, "no ontologies in workspace")
		return exitOK
	}
	for _, item := range items {
		_, _ = fmt.Fprintf(a.stdout, "%s  %s", item.ID, item.DisplayName)
		if item.Description != "" {
			_, _ = fmt.Fprintf(a.stdout, "  %s", item.Description)
		}
		_, _ = fmt.Fprintln(a.stdout)
	}
	return exitOK
}

func runGet(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var configPath, id string
	var withDefinition bool
	fs.StringVar(&configPath, "config", "", "configuration file")
	fs.StringVar(&id, "id", "", "ontology id (required)")
	fs.BoolVar(&withDefinition, "definition", false, "also fetch the definition bundle")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	if id == "" {
		_, _ = fmt.Fprintln(stderr, "usage: ontoforge get --id <id> [--definition]")
		return exitBadInput
	}

	a, err := newApp(configPath, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return exitFor(err)
	}
	defer a.Close()

	client, err := a.client()
	if err != nil {
		return a.fail(err)
	}
	item, err := client.Get(ctx, id)
	if err != nil {
		return a.fail(err)
	}

	out := map[string]interface{}{"item": item}
	if withDefinition {
		def, err := client.GetDefinition(ctx, id)
		if err != nil {
			return a.fail(err)
		}
		out["definition"] = def
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return a.fail(err)
	}
	_, _ = a.stdout.Write(append(data, '\n'))
	return exitOK
}

func runDelete(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var configPath, id string
	var force bool
	fs.StringVar(&configPath, "config", "", "configuration file")
	fs.StringVar(&id, "id", "", "ontology id (required)")
	fs.BoolVar(&force, "force", false, "delete without the existence pre-check")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	if id == "" {
		_, _ = fmt.Fprintln(stderr, "usage: ontoforge delete --id <id>")
		return exitBadInput
	}

	a, err := newApp(configPath, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return exitFor(err)
	}
	defer a.Close()

	client, err := a.client()
	if err != nil {
		return a.fail(err)
	}
	if !force {
		if _, err := client.Get(ctx, id); err != nil {
			return a.fail(err)
		}
	}
	if err := client.Delete(ctx, id); err != nil {
		return a.fail(err)
	}
	_, _ = fmt.Fprintf(a.stdout, "deleted %s\n", id)
	return exitOK
}

// runTest checks credentials and connectivity by listing the workspace, then
// reports the client's resilience counters.
func runTest(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var configPath string
	fs.StringVar(&configPath, "config", "", "configuration file")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}

	a, err := newApp(configPath, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return exitFor(err)
	}
	defer a.Close()

	client, err := a.client()
	if err != nil {
		return a.fail(err)
	}
	items, err := client.List(ctx)
	if err != nil {
		return a.fail(err)
	}
	stats := client.LimiterStats()
	_, _ = fmt.Fprintf(a.stdout, "connection ok: workspace %s holds %d ontologies\n",
		a.cfg.Fabric.WorkspaceID, len(items))
	_, _ = fmt.Fprintf(a.stdout, "rate limiter: %d requests, %d waited, breaker %s\n",
		stats.Total, stats.Waited, client.Breaker().State())
	return exitOK
}
