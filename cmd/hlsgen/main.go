package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-hls/internal/backend"
	"github.com/23skdu/longbow-hls/internal/client"
	"github.com/23skdu/longbow-hls/internal/graph"
	"github.com/23skdu/longbow-hls/internal/pipeline"
)

var (
	backendName     = flag.String("backend", "quartus", "Target backend (quartus, vivado)")
	outPath         = flag.String("out", "-", "Arrow IPC output file, - for stdout")
	serverAddr      = flag.String("server", "", "Flight server address to publish manifests to (e.g. localhost:3000)")
	datasetName     = flag.String("dataset", "hls_manifests", "Target dataset name on the Flight server")
	listenAddr      = flag.String("listen", "", "Address to listen on for HTTP Server (e.g. :8080)")
	maxConcurrent   = flag.Int("max-concurrent", 64, "Maximum number of graphs compiled at once by the HTTP server")
	enableOTel      = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	logLevel        = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	breakerFailures = flag.Int("breaker-failures", 3, "Consecutive publish failures before publishing pauses")
	breakerCooldown = flag.Duration("breaker-cooldown", 30*time.Second, "How long publishing pauses after the breaker opens")
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] graph.cbor...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	backends, err := backend.NewSet()
	if err != nil {
		log.Fatal().Err(err).Msg("Template registry is incomplete")
	}
	b, err := backends.Lookup(*backendName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to select backend")
	}

	var publisher *client.Publisher
	if *serverAddr != "" {
		fc, err := client.NewFlightClient(*serverAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create flight client")
		}
		defer func() {
			if err := fc.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close flight client")
			}
		}()
		log.Info().Str("addr", *serverAddr).Str("dataset", *datasetName).Msg("Publishing manifests to Flight server")
		publisher = client.NewPublisher(fc, client.NewCircuitBreaker(*breakerFailures, *breakerCooldown), *datasetName)
	}

	// Server Mode
	if *listenAddr != "" {
		startServer(*listenAddr, backends, b, publisher, *maxConcurrent)
		return
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if err := runBatch(context.Background(), b, publisher, flag.Args()); err != nil {
		log.Fatal().Err(err).Msg("Code generation failed")
	}
}

// runBatch compiles every snapshot before writing anything, so a failing
// graph leaves no output behind.
func runBatch(ctx context.Context, b *backend.Backend, publisher *client.Publisher, paths []string) error {
	builder := client.NewManifestBuilder(memory.NewGoAllocator())
	var records []arrow.RecordBatch
	defer func() {
		for _, rec := range records {
			rec.Release()
		}
	}()

	for _, path := range paths {
		start := time.Now()
		res, err := compileFile(ctx, b, path)
		if err != nil {
			return err
		}
		log.Info().
			Str("graph", res.Graph).
			Str("backend", b.Name).
			Int("nodes", len(res.Artifacts)).
			Dur("elapsed", time.Since(start)).
			Msg("Compiled graph")
		if rec := builder.Build(res); rec != nil {
			records = append(records, rec)
		}
	}

	if publisher != nil {
		for _, rec := range records {
			if err := publisher.Publish(ctx, rec); err != nil {
				return err
			}
		}
		log.Info().Int("graphs", len(records)).Msg("Published manifests")
		return nil
	}
	return writeRecords(*outPath, records)
}

func compileFile(ctx context.Context, b *backend.Backend, path string) (*pipeline.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	g, err := graph.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	res, err := pipeline.Compile(ctx, g, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

// writeRecords writes one IPC stream per record. A file target is written
// to a temporary file first and renamed into place.
func writeRecords(path string, records []arrow.RecordBatch) error {
	if path == "-" {
		return writeStreams(os.Stdout, records)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".hlsgen-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := writeStreams(tmp, records); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeStreams(w io.Writer, records []arrow.RecordBatch) error {
	for _, rec := range records {
		if err := client.WriteStream(w, rec); err != nil {
			return err
		}
	}
	return nil
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("hlsgen"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
