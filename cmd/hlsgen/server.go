package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-hls/internal/backend"
	"github.com/23skdu/longbow-hls/internal/cache"
	"github.com/23skdu/longbow-hls/internal/client"
	"github.com/23skdu/longbow-hls/internal/graph"
	"github.com/23skdu/longbow-hls/internal/pipeline"
)

// maxSnapshotBytes bounds a /compile request body.
const maxSnapshotBytes = 256 << 20

var (
	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hlsgen_request_duration_seconds",
		Help:    "Time spent processing compile requests",
		Buckets: prometheus.DefBuckets,
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsgen_requests_total",
		Help: "Compile requests by HTTP status code",
	}, []string{"code"})
)

// Publisher sends a compiled manifest downstream.
type Publisher interface {
	Publish(ctx context.Context, rec arrow.RecordBatch) error
}

type Server struct {
	backends       *backend.Set
	defaultBackend string
	publisher      Publisher
	manifests      *client.ManifestBuilder
	results        *cache.ResultCache
	sem            *semaphore.Weighted
}

func NewServer(backends *backend.Set, defaultBackend string, publisher Publisher, maxConcurrent int) *Server {
	return &Server{
		backends:       backends,
		defaultBackend: defaultBackend,
		publisher:      publisher,
		manifests:      client.NewManifestBuilder(memory.NewGoAllocator()),
		results:        cache.NewResultCache(),
		sem:            semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/compile", s.handleCompile)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func startServer(addr string, backends *backend.Set, b *backend.Backend, publisher *client.Publisher, maxConcurrent int) {
	var p Publisher
	if publisher != nil {
		p = publisher
	}
	srv := NewServer(backends, b.Name, p, maxConcurrent)

	log.Info().Str("addr", addr).Str("backend", b.Name).Msg("Starting hlsgen server")
	if err := http.ListenAndServe(addr, srv.routes()); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

var tracer = otel.Tracer("hlsgen-server")

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleCompile")
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		s.fail(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	name := r.URL.Query().Get("backend")
	if name == "" {
		name = s.defaultBackend
	}
	b, err := s.backends.Lookup(name)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	span.SetAttributes(attribute.String("backend", b.Name))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSnapshotBytes))
	if err != nil {
		span.RecordError(err)
		s.fail(w, http.StatusBadRequest, fmt.Sprintf("Bad Request (read body): %v", err))
		return
	}

	key := cache.Key(b.Name, body)
	if res, ok := s.results.Get(key); ok {
		span.SetAttributes(attribute.Bool("cached", true))
		s.respond(w, res)
		return
	}

	// Admission Control
	if err := s.sem.Acquire(ctx, 1); err != nil {
		log.Error().Err(err).Msg("Failed to acquire semaphore")
		s.fail(w, http.StatusServiceUnavailable, "Server busy")
		return
	}
	defer s.sem.Release(1)

	g, err := graph.Decode(bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		s.fail(w, http.StatusBadRequest, fmt.Sprintf("Bad Request (CBOR decode): %v", err))
		return
	}
	span.SetAttributes(attribute.String("graph", g.Name), attribute.Int("nodes", g.Len()))

	res, err := pipeline.Compile(ctx, g, b)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, backend.ErrNotSupported) {
			code = http.StatusUnprocessableEntity
		} else {
			log.Error().Err(err).Str("graph", g.Name).Str("backend", b.Name).Msg("Compile failed")
		}
		s.fail(w, code, err.Error())
		return
	}
	s.results.Put(key, res)

	if s.publisher != nil {
		if rec := s.manifests.Build(res); rec != nil {
			if err := s.publisher.Publish(ctx, rec); err != nil {
				log.Error().Err(err).Str("graph", g.Name).Msg("Error publishing manifest")
			}
			rec.Release()
		}
	}

	s.respond(w, res)
}

func (s *Server) respond(w http.ResponseWriter, res *pipeline.Result) {
	data, err := cbor.Marshal(res)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	requestsTotal.WithLabelValues("200").Inc()
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) fail(w http.ResponseWriter, code int, msg string) {
	requestsTotal.WithLabelValues(fmt.Sprint(code)).Inc()
	http.Error(w, msg, code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
