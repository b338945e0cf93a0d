package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/ccb/internal/builder"
	"github.com/Norgate-AV/ccb/internal/config"
	"github.com/Norgate-AV/ccb/internal/scan"
	"github.com/Norgate-AV/ccb/internal/stale"
)

func newDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps [file...]",
		Short: "List the headers a source file includes",
		Long: `Scan files for #include directives and show where each header resolves
in the include directories. With --target the sources and include directories
of a configured target are used.`,
		RunE:         runDeps,
		SilenceUsage: true,
		Args:         cobra.ArbitraryArgs,
	}

	cmd.Flags().StringArrayP("include", "I", []string{}, "Include directory, in search order")
	cmd.Flags().StringP("target", "t", "", "Configured target whose sources are scanned")
	cmd.Flags().BoolP("recursive", "R", false, "Also scan resolved headers")

	return cmd
}

// dependency is one include directive found in a file
type dependency struct {
	file     string
	include  string
	resolved string
}

func runDeps(cmd *cobra.Command, args []string) error {
	files, search, err := depsInputs(cmd, args)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no files to scan")
	}

	recursive, _ := cmd.Flags().GetBool("recursive")

	deps, err := collectDeps(files, search, recursive)
	if err != nil {
		return err
	}

	printDeps(cmd.OutOrStdout(), deps)

	return nil
}

func depsInputs(cmd *cobra.Command, args []string) ([]string, []string, error) {
	name, _ := cmd.Flags().GetString("target")
	if name == "" {
		includes, _ := cmd.Flags().GetStringArray("include")
		return args, includes, nil
	}

	cfg, err := config.NewLoader().LoadForBuild(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	t, ok := cfg.Target(name)
	if !ok {
		return nil, nil, fmt.Errorf("unknown target: %s", name)
	}

	files, err := builder.ExpandSources(t.Sources)
	if err != nil {
		return nil, nil, err
	}

	return files, t.Includes, nil
}

// collectDeps scans files in order. With recursive set, resolved headers are
// scanned once each after the files that include them.
func collectDeps(files, search []string, recursive bool) ([]dependency, error) {
	var deps []dependency

	queue := append([]string(nil), files...)
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		seen[filepath.Clean(f)] = struct{}{}
	}

	for len(queue) > 0 {
		file := queue[0]
		queue = queue[1:]

		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}

		for _, include := range scan.Includes(string(content)) {
			path, _, ok := stale.Resolve(search, include)
			deps = append(deps, dependency{file: file, include: include, resolved: path})

			if !ok || !recursive {
				continue
			}

			key := filepath.Clean(path)
			if _, done := seen[key]; done {
				continue
			}

			seen[key] = struct{}{}
			queue = append(queue, path)
		}
	}

	return deps, nil
}

func printDeps(w io.Writer, deps []dependency) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"File", "Include", "Resolved"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	resolved := 0
	for _, d := range deps {
		path := d.resolved
		if path == "" {
			path = "-"
		} else {
			resolved++
		}

		table.Append([]string{d.file, d.include, path})
	}

	table.SetFooter([]string{"", "Resolved", fmt.Sprintf("%d/%d", resolved, len(deps))})
	table.Render()
}
