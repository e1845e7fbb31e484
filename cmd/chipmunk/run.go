package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/kruss/chipmunk/internal/format"
	"github.com/kruss/chipmunk/internal/logger"
	"github.com/kruss/chipmunk/internal/plugin/host"
	"github.com/kruss/chipmunk/internal/plugin/proxy"
	"github.com/kruss/chipmunk/internal/source"
	"github.com/kruss/chipmunk/internal/store"
	"github.com/kruss/chipmunk/internal/stream"
)

func runCmd(manifestPath *string) *cobra.Command {
	var parserName string
	var sourceName string
	var withStorageHeader bool
	var outputPath string
	var formatName string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "Parse an input file through plugins",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if outputPath == "" {
				outputPath = input + ".out"
			}
			formatter, err := format.ByName(formatName)
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

			var db *store.Store
			var session *store.Session
			if dbPath != "" {
				if db, err = store.Open(dbPath); err != nil {
					return err
				}
				defer db.Close()
				if session, err = db.CreateSession(input, parserName); err != nil {
					return err
				}
			}

			out, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", outputPath, err)
			}
			defer out.Close()
			writer := bufio.NewWriter(out)

			producer := stream.NewProducer(parser, byteSource, nil)
			messages := 0
			skipped := 0
			for entry := range producer.Stream(ctx) {
				switch entry.Kind {
				case stream.ItemMessage:
					if err := formatter.WriteMessage(writer, entry.Message); err != nil {
						return err
					}
					if session != nil {
						if err := db.AddMessage(session.ID, messages, entry.Message.String()); err != nil {
							return err
						}
					}
					messages++
				case stream.ItemSkipped:
					skipped++
				}
			}
			if err := writer.Flush(); err != nil {
				return fmt.Errorf("flush %s: %w", outputPath, err)
			}
			if session != nil {
				if err := db.FinishSession(session.ID, messages, skipped); err != nil {
					return err
				}
				logger.Info("session recorded", "session", session.ID)
			}

			fmt.Printf("parsed %d messages (%d skipped) into %s\n", messages, skipped, outputPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&parserName, "parser", "", "Parser plugin name (required)")
	cmd.Flags().StringVar(&sourceName, "source", "", "Byte-source plugin name (default: read the file in-process)")
	cmd.Flags().BoolVar(&withStorageHeader, "with-storage-header", true, "Input frames carry storage headers")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output path (default <input>.out)")
	cmd.Flags().StringVar(&formatName, "format", "text", "Output format (text|binary)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Record the session into this sqlite database")
	_ = cmd.MarkFlagRequired("parser")
	return cmd
}

func newParser(ctx context.Context, runtime *host.Runtime, manifest *host.Manifest, name string, withStorageHeader bool) (*proxy.ParserProxy, error) {
	entry := manifest.Find(name)
	if entry == nil || entry.Kind != host.KindParser {
		return nil, fmt.Errorf("no parser plugin named %q in the manifest", name)
	}
	p, err := runtime.CreateProxy(ctx, name)
	if err != nil {
		return nil, err
	}
	parser, err := proxy.NewParserProxy(ctx, p, withStorageHeader)
	if err != nil {
		_ = p.Close(context.Background())
		return nil, err
	}
	return parser, nil
}

func newByteSource(ctx context.Context, runtime *host.Runtime, manifest *host.Manifest, name, input string) (stream.ByteSource, func(), error) {
	if name == "" {
		in, err := os.Open(input)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", input, err)
		}
		src := source.NewBinaryByteSource(in, source.DefaultMinBufferSpace, source.DefaultReaderCapacity)
		return src, func() { _ = in.Close() }, nil
	}

	entry := manifest.Find(name)
	if entry == nil || entry.Kind != host.KindSource {
		return nil, nil, fmt.Errorf("no source plugin named %q in the manifest", name)
	}
	p, err := runtime.CreateProxy(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	src, err := proxy.NewByteSourceProxy(ctx, p, input,
		source.DefaultReaderCapacity, source.DefaultMinBufferSpace)
	if err != nil {
		_ = p.Close(context.Background())
		return nil, nil, err
	}
	return src, func() { _ = src.Close(context.Background()) }, nil
}
