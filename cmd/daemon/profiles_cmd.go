package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ManuGH/podstream/internal/config"
	"github.com/ManuGH/podstream/internal/profiles"
	"github.com/ManuGH/podstream/internal/version"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// runProfilesCLI prints the profiles the daemon would serve with the given configuration.
func runProfilesCLI(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("profiles", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file (YAML or TOML)")
	profilesPath := fs.String("file", "", "profiles file; overrides the configured path")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing profiles flags: %v\n", err)
		return 1
	}

	path := *profilesPath
	if path == "" {
		cfg, err := config.NewLoader(*configPath, version.Version).Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			return 1
		}
		path = cfg.ProfilesPath
	}

	reg, err := profiles.NewRegistry(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading profiles: %v\n", err)
		return 1
	}

	source := path
	if source == "" {
		source = "built-in"
	}
	fmt.Fprintf(out, "Profiles (%s)\n", source)
	fmt.Fprintln(out, renderProfiles(reg.List()))
	return 0
}

func renderProfiles(infos []profiles.Info) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Name", "Topology", "Content-Type", "Ext", "Description"})
	for _, info := range infos {
		tw.AppendRow(table.Row{info.Name, info.Topology, info.ContentType, info.FileExtension, info.Description})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
