// registry-updater maintains the flow registry the template validator checks
// $meta.tcode references against.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"sqpr-engine/pkg/registry"

	"github.com/jedib0t/go-pretty/v6/table"
)

const defaultPath = "configs/flow-registry.json"

func main() {
	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2:], os.Stdout, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string, out io.Writer, now time.Time) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	path := fs.String("path", defaultPath, "Path to registry file (.json, .yaml or .yml)")

	switch command {
	case "add":
		tcode := fs.String("tcode", "", "Transaction code (e.g., KSB1)")
		name := fs.String("name", "", "Flow file name (defaults to <TCODE>.json)")
		description := fs.String("description", "", "Description")
		tags := fs.String("tags", "", "Comma-separated tags")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *tcode == "" {
			return errors.New("tcode is required for add")
		}
		reg, err := loadOrCreate(*path, now)
		if err != nil {
			return err
		}
		flow := registry.Flow{Name: *name, TCode: *tcode, Description: *description, Tags: splitTags(*tags)}
		if err := reg.Add(flow, now); err != nil {
			return err
		}
		if err := registry.SaveRegistry(reg, *path); err != nil {
			return err
		}
		fmt.Fprintf(out, "Added flow for %s\n", strings.ToUpper(*tcode))

	case "remove":
		name := fs.String("name", "", "Flow file name to remove")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *name == "" {
			return errors.New("name is required for remove")
		}
		reg, err := registry.LoadRegistry(*path)
		if err != nil {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		if err := reg.Remove(*name, now); err != nil {
			return err
		}
		if err := registry.SaveRegistry(reg, *path); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed flow %s\n", *name)

	case "validate":
		if err := fs.Parse(args); err != nil {
			return err
		}
		reg, err := registry.LoadRegistry(*path)
		if err != nil {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		if err := reg.Validate(); err != nil {
			return fmt.Errorf("registry validation failed: %w", err)
		}
		fmt.Fprintf(out, "Registry validation passed. Found %d flows.\n", len(reg.Flows))

	case "list":
		if err := fs.Parse(args); err != nil {
			return err
		}
		reg, err := registry.LoadRegistry(*path)
		if err != nil {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		tw := table.NewWriter()
		tw.SetOutputMirror(out)
		tw.AppendHeader(table.Row{"Name", "TCode", "Description", "Tags"})
		for _, f := range reg.Flows {
			tw.AppendRow(table.Row{f.Name, f.TCode, f.Description, strings.Join(f.Tags, ",")})
		}
		tw.Render()

	case "help":
		help()

	default:
		help()
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func loadOrCreate(path string, now time.Time) (*registry.FlowRegistry, error) {
	reg, err := registry.LoadRegistry(path)
	if err == nil {
		return reg, nil
	}
	if os.IsNotExist(err) {
		return registry.New(now), nil
	}
	return nil, fmt.Errorf("failed to load registry: %w", err)
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func help() {
	fmt.Println(`
Usage: registry-updater <command> [flags]

Commands:
  add       Add a flow to the registry
  remove    Remove a flow by file name
  validate  Validate the registry file
  list      Print the registered flows
  help      Show this help message

Examples:
  registry-updater add -tcode KSB1 -description "Cost centers: actual line items" -tags costs,detail
  registry-updater remove -name KSB1.json
  registry-updater validate -path configs/flow-registry.yaml
  registry-updater list

Use 'registry-updater <command> -h' for more information about a command.`)
}
