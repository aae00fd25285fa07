package passes

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"

	"github.com/23skdu/longbow-hls/internal/graph"
)

// StrategyResource is the node strategy that selects the streaming
// dense_resource kernels and therefore the transposed weight layout.
const StrategyResource = "resource"

// permuteRule rewrites one named tensor into the layout the kernel streams.
type permuteRule struct {
	tensor string
	// axes is nil for a plain 2-d transpose.
	axes []int
}

func transpose(name string) permuteRule { return permuteRule{tensor: name} }

// (W, C, F) -> (F, W, C)
func wcfToFWC(name string) permuteRule { return permuteRule{tensor: name, axes: []int{2, 0, 1}} }

// (H, W, C, F) -> (F, H, W, C)
func hwcfToFHWC(name string) permuteRule { return permuteRule{tensor: name, axes: []int{3, 0, 1, 2}} }

var resourceRules = map[graph.LayerVariant][]permuteRule{
	graph.Dense:           {transpose("weight")},
	graph.Conv1D:          {wcfToFWC("weight")},
	graph.SeparableConv1D: {wcfToFWC("depthwise"), wcfToFWC("pointwise")},
	graph.Conv2D:          {hwcfToFHWC("weight")},
	graph.SeparableConv2D: {hwcfToFHWC("depthwise"), hwcfToFHWC("pointwise")},
	graph.LSTM:            {transpose("weight"), transpose("recurrent_weight")},
	graph.GRU:             {transpose("weight"), transpose("recurrent_weight")},
	// Attention weights keep their authoring layout; the kernel's expected
	// order has not been pinned down.
	graph.MultiHeadAttention: nil,
}

// ResourceStrategy reorders weights for nodes using the resource strategy so
// the kernel can stream them filter-major. It fires at most once per node.
type ResourceStrategy struct{}

var _ Pass = ResourceStrategy{}

func (ResourceStrategy) Name() string { return "apply_resource_strategy" }

// Supports reports whether v is in the pass's rule table.
func (ResourceStrategy) Supports(v graph.LayerVariant) bool {
	_, ok := resourceRules[v]
	return ok
}

func (p ResourceStrategy) Match(n *graph.Node) bool {
	return p.Supports(n.Variant()) &&
		sameStrategy(n.Strategy, StrategyResource) &&
		n.Layout() == graph.LayoutUntransformed
}

func (ResourceStrategy) Transform(_ *graph.Graph, n *graph.Node) (bool, error) {
	rules, ok := resourceRules[n.Variant()]
	if !ok {
		return false, fmt.Errorf("%w %s with resource strategy", ErrUnexpectedLayer, n.Variant())
	}
	if n.Layout() == graph.LayoutTransformed {
		return false, nil
	}

	if n.Variant() == graph.MultiHeadAttention {
		log.Warn().
			Str("node", n.Name).
			Str("variant", n.Variant().String()).
			Msg("Weights not transposed for resource strategy")
	}

	// Compute every new layout before touching the node so a failure leaves
	// all of its tensors as they were.
	staged := make([]graph.Layout, len(rules))
	targets := make([]*graph.WeightTensor, len(rules))
	for i, r := range rules {
		w := n.Weight(r.tensor)
		if w == nil {
			return false, fmt.Errorf("%w %s: missing weight %q", ErrUnexpectedLayer, n.Variant(), r.tensor)
		}
		var (
			l   graph.Layout
			err error
		)
		if r.axes == nil {
			l, err = w.Transpose()
		} else {
			l, err = w.Permute(r.axes...)
		}
		if err != nil {
			return false, err
		}
		staged[i], targets[i] = l, w
	}

	for i, w := range targets {
		w.Replace(staged[i])
	}
	n.MarkTransformed()
	return false, nil
}

func sameStrategy(a, b string) bool {
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}
