package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/23skdu/longbow-hls/internal/backend"
	"github.com/23skdu/longbow-hls/internal/graph"
	"github.com/23skdu/longbow-hls/internal/passes"
	"github.com/23skdu/longbow-hls/internal/templates"
)

var tracer = otel.Tracer("longbow-hls-pipeline")

// Artifact is the generated text for one node.
type Artifact struct {
	Node     string   `cbor:"node"`
	Variant  string   `cbor:"variant"`
	Config   string   `cbor:"config"`
	Call     string   `cbor:"call"`
	Includes []string `cbor:"includes"`
}

// Result is the generated text for a whole graph. Includes is the union of
// every artifact's includes in first-seen order.
type Result struct {
	Graph     string     `cbor:"graph"`
	Backend   string     `cbor:"backend"`
	Artifacts []Artifact `cbor:"artifacts"`
	Includes  []string   `cbor:"includes"`
}

// Compile runs the backend's passes over g and renders every node. g is
// modified in place by the passes. On error no result is returned.
func Compile(ctx context.Context, g *graph.Graph, b *backend.Backend) (*Result, error) {
	ctx, span := tracer.Start(ctx, "compile", trace.WithAttributes(
		attribute.String("graph", g.Name),
		attribute.String("backend", b.Name),
		attribute.Int("nodes", g.Len()),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		compileDuration.WithLabelValues(b.Name).Observe(time.Since(start).Seconds())
	}()

	res, err := compile(ctx, g, b)
	if err != nil {
		renderFailures.WithLabelValues(b.Name, errorKind(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

func compile(ctx context.Context, g *graph.Graph, b *backend.Backend) (*Result, error) {
	// Validate up front so an unsupported graph is rejected before the
	// passes rewrite any weights.
	nodes := g.Nodes()
	tags := make([]string, len(nodes))
	for i, n := range nodes {
		tag, err := b.Validate(n)
		if err != nil {
			return nil, fmt.Errorf("graph %q: node %q: %w", g.Name, n.Name, err)
		}
		tags[i] = tag
	}

	pctx, span := tracer.Start(ctx, "passes")
	err := passes.Run(pctx, g, b.Passes()...)
	span.End()
	if err != nil {
		return nil, fmt.Errorf("graph %q: %w", g.Name, err)
	}

	_, span = tracer.Start(ctx, "render")
	defer span.End()

	includes := orderedmap.New[string, struct{}]()
	artifacts := make([]Artifact, 0, g.Len())
	for i, n := range nodes {
		a, err := render(b, n, tags[i])
		if err != nil {
			return nil, fmt.Errorf("graph %q: node %q: %w", g.Name, n.Name, err)
		}
		for _, inc := range a.Includes {
			includes.Set(inc, struct{}{})
		}
		artifacts = append(artifacts, a)
	}

	res := &Result{
		Graph:     g.Name,
		Backend:   b.Name,
		Artifacts: artifacts,
		Includes:  make([]string, 0, includes.Len()),
	}
	for pair := includes.Oldest(); pair != nil; pair = pair.Next() {
		res.Includes = append(res.Includes, pair.Key)
	}
	for _, a := range artifacts {
		nodesRendered.WithLabelValues(b.Name, a.Variant).Inc()
	}

	log.Debug().
		Str("graph", g.Name).
		Str("backend", b.Name).
		Int("nodes", len(artifacts)).
		Int("includes", len(res.Includes)).
		Msg("Compiled graph")
	return res, nil
}

func render(b *backend.Backend, n *graph.Node, tag string) (Artifact, error) {
	config, err := b.Registry().Config(n)
	if err != nil {
		return Artifact{}, err
	}
	call, err := b.Registry().Call(n, tag)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Node:     n.Name,
		Variant:  n.Variant().String(),
		Config:   config,
		Call:     call,
		Includes: b.Includes(n.Variant()),
	}, nil
}

// Error kinds reported by errorKind.
const (
	KindNotSupported    = "not_supported"
	KindUnexpectedLayer = "unexpected_layer"
	KindMissingTemplate = "missing_template"
	KindCanceled        = "canceled"
	KindOther           = "other"
)

func errorKind(err error) string {
	switch {
	case errors.Is(err, backend.ErrNotSupported):
		return KindNotSupported
	case errors.Is(err, passes.ErrUnexpectedLayer):
		return KindUnexpectedLayer
	case errors.Is(err, templates.ErrMissingTemplate):
		return KindMissingTemplate
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindOther
}
