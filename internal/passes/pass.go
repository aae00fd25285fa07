package passes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-hls/internal/graph"
)

// ErrUnexpectedLayer means a pass was handed a node whose variant it does not
// declare. It indicates a bug in the pass's match predicate or its caller.
var ErrUnexpectedLayer = errors.New("unexpected layer")

// DefaultMaxSweeps bounds Run when passes keep reporting structural changes.
const DefaultMaxSweeps = 64

// Pass is a graph rewrite rule.
type Pass interface {
	Name() string
	// Match reports whether the pass applies to n. It has no side effects.
	Match(n *graph.Node) bool
	// Transform rewrites n. The returned bool is true when the node set of g
	// changed and the caller must re-scan.
	Transform(g *graph.Graph, n *graph.Node) (bool, error)
}

// Run applies passes to g until a full sweep over the nodes matches nothing.
// The first transform error aborts the run.
func Run(ctx context.Context, g *graph.Graph, passes ...Pass) error {
	for sweep := 0; sweep < DefaultMaxSweeps; sweep++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		changed, applied, err := sweepOnce(g, passes)
		if err != nil {
			return err
		}
		if !changed && applied == 0 {
			log.Debug().Str("graph", g.Name).Int("sweeps", sweep+1).Msg("Passes reached fixed point")
			return nil
		}
	}
	return fmt.Errorf("graph %q: passes did not converge after %d sweeps", g.Name, DefaultMaxSweeps)
}

func sweepOnce(g *graph.Graph, passes []Pass) (changed bool, applied int, err error) {
	for _, n := range g.Nodes() {
		for _, p := range passes {
			if !p.Match(n) {
				continue
			}
			start := time.Now()
			restart, err := p.Transform(g, n)
			passDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
			if err != nil {
				return false, applied, fmt.Errorf("pass %s on node %q: %w", p.Name(), n.Name, err)
			}
			applied++
			passTransforms.WithLabelValues(p.Name(), n.Variant().String()).Inc()
			if restart {
				return true, applied, nil
			}
		}
	}
	return false, applied, nil
}
