package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kruss/chipmunk/internal/logger"
	"github.com/kruss/chipmunk/internal/plugin/host"
	"github.com/kruss/chipmunk/internal/plugin/rpc"
	"github.com/kruss/chipmunk/internal/search"
)

var version = "dev"

func main() {
	var logLevel string
	var logFile string
	var manifestPath string

	root := &cobra.Command{
		Use:   "chipmunk",
		Short: "chipmunk — plugin-hosted log parsing",
		Long:  "Parses log streams through sandboxed parser and byte-source plugins.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logLevel, logFile)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "Also append logs to this file")
	root.PersistentFlags().StringVar(&manifestPath, "plugins", "plugins.yaml", "Plugin manifest file")

	root.AddCommand(
		runCmd(&manifestPath),
		exportCmd(&manifestPath),
		pluginsCmd(&manifestPath),
		searchCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func pluginsCmd(manifestPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List configured plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := host.LoadManifest(*manifestPath)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tFLAVOR\tPATH")
			for _, p := range manifest.Plugins {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.Kind, p.Flavor, p.Path)
			}
			return w.Flush()
		},
	}
}

func searchCmd() *cobra.Command {
	var regex bool
	var caseSensitive bool
	cmd := &cobra.Command{
		Use:   "search <file> <pattern> [pattern...]",
		Short: "Search an exported session file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := make([]search.Filter, 0, len(args)-1)
			for _, pattern := range args[1:] {
				filters = append(filters, search.Filter{
					Value:         pattern,
					IsRegex:       regex,
					CaseSensitive: caseSensitive,
				})
			}
			matches, stats, err := search.File(args[0], filters)
			if err != nil {
				return err
			}
			for _, m := range matches {
				fmt.Printf("%d: filters %v\n", m.Line, m.Filters)
			}
			fmt.Printf("found %d matching lines (%s)\n", len(matches), stats.Summary(filters))
			return nil
		},
	}
	cmd.Flags().BoolVar(&regex, "regex", false, "Treat patterns as regular expressions")
	cmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "Match case")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chipmunk %s (plugin protocol revision %d)\n", version, rpc.Revision)
		},
	}
}
