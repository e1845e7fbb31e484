package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kruss/chipmunk/internal/export"
	"github.com/kruss/chipmunk/internal/plugin/host"
	"github.com/kruss/chipmunk/internal/stream"
)

func exportCmd(manifestPath *string) *cobra.Command {
	var parserName string
	var sourceName string
	var withStorageHeader bool
	var outputPath string
	var sectionsFlag string

	cmd := &cobra.Command{
		Use:   "export <input>",
		Short: "Export raw message bytes, optionally restricted to index sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if outputPath == "" {
				outputPath = input + ".export"
			}
			sections, err := parseSections(sectionsFlag)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			manifest, err := host.LoadManifest(*manifestPath)
			if err != nil {
				return err
			}
			runtime := host.NewRuntime()
			if err := runtime.Register(manifest); err != nil {
				return err
			}

			parser, err := newParser(ctx, runtime, manifest, parserName, withStorageHeader)
			if err != nil {
				return err
			}
			defer parser.Close(context.Background())

			byteSource, closeSource, err := newByteSource(ctx, runtime, manifest, sourceName, input)
			if err != nil {
				return err
			}
			defer closeSource()

			producer := stream.NewProducer(parser, byteSource, nil)
			exported, err := export.Raw(ctx, producer.Stream(ctx), outputPath, sections)
			if err != nil {
				return err
			}
			fmt.Printf("exported %d messages into %s\n", exported, outputPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&parserName, "parser", "", "Parser plugin name (required)")
	cmd.Flags().StringVar(&sourceName, "source", "", "Byte-source plugin name (default: read the file in-process)")
	cmd.Flags().BoolVar(&withStorageHeader, "with-storage-header", true, "Input frames carry storage headers")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output path (default <input>.export)")
	cmd.Flags().StringVar(&sectionsFlag, "sections", "", "Comma-separated index ranges, e.g. 0:99,200:250")
	_ = cmd.MarkFlagRequired("parser")
	return cmd
}

// parseSections turns "0:99,200:250" into index sections.
func parseSections(flag string) ([]export.IndexSection, error) {
	if flag == "" {
		return nil, nil
	}
	var sections []export.IndexSection
	for _, part := range strings.Split(flag, ",") {
		first, last, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid section %q, want first:last", part)
		}
		firstLine, err := strconv.Atoi(first)
		if err != nil {
			return nil, fmt.Errorf("invalid section %q: %w", part, err)
		}
		lastLine, err := strconv.Atoi(last)
		if err != nil {
			return nil, fmt.Errorf("invalid section %q: %w", part, err)
		}
		sections = append(sections, export.IndexSection{FirstLine: firstLine, LastLine: lastLine})
	}
	return sections, nil
}
