package graph

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrWeightSet is returned when a node's weights differ from its variant's declaration.
var ErrWeightSet = errors.New("weight set does not match layer variant")

// LayoutState tracks the one-time weight layout rewrite. It only moves from
// LayoutUntransformed to LayoutTransformed.
type LayoutState uint8

const (
	LayoutUntransformed LayoutState = iota
	LayoutTransformed
)

func (s LayoutState) String() string {
	if s == LayoutTransformed {
		return "transformed"
	}
	return "untransformed"
}

// Port names an activation buffer and its element type in generated code.
type Port struct {
	Var  string `cbor:"var"`
	Type string `cbor:"type"`
}

// Node is one layer of the graph.
type Node struct {
	Name     string
	Index    int
	Strategy string
	// ReuseFactor is the number of times a multiplier is reused per inference.
	ReuseFactor int
	Input       Port
	Output      Port
	Attrs       Attributes

	variant LayerVariant
	weights map[string]*WeightTensor
	layout  LayoutState
}

// NodeSpec carries everything the front-end knows about a layer.
type NodeSpec struct {
	Name        string
	Index       int
	Variant     LayerVariant
	Strategy    string
	ReuseFactor int
	Input       Port
	Output      Port
	Attrs       Attributes
	Weights     []*WeightTensor
}

// NewNode builds a node, checking that the attribute record and the weight
// set both match the variant.
func NewNode(spec NodeSpec) (*Node, error) {
	if !spec.Variant.Valid() {
		return nil, fmt.Errorf("node %q: %w %s", spec.Name, ErrUnknownVariant, spec.Variant)
	}
	if spec.Attrs == nil || !spec.Attrs.accepts(spec.Variant) {
		return nil, fmt.Errorf("node %q: %w: %T is not a %s record", spec.Name, ErrAttributes, spec.Attrs, spec.Variant)
	}
	if err := spec.Attrs.validate(); err != nil {
		return nil, fmt.Errorf("node %q: %w", spec.Name, err)
	}

	weights := make(map[string]*WeightTensor, len(spec.Weights))
	for _, w := range spec.Weights {
		if _, dup := weights[w.Name]; dup {
			return nil, fmt.Errorf("node %q: %w: duplicate %q", spec.Name, ErrWeightSet, w.Name)
		}
		weights[w.Name] = w
	}
	declared := DeclaredWeights(spec.Variant)
	got := slices.Sorted(maps.Keys(weights))
	if want := slices.Sorted(slices.Values(declared)); !slices.Equal(got, want) {
		return nil, fmt.Errorf("node %q: %w: %s declares [%s], got [%s]",
			spec.Name, ErrWeightSet, spec.Variant, strings.Join(want, " "), strings.Join(got, " "))
	}

	reuse := spec.ReuseFactor
	if reuse <= 0 {
		reuse = 1
	}
	return &Node{
		Name:        spec.Name,
		Index:       spec.Index,
		Strategy:    spec.Strategy,
		ReuseFactor: reuse,
		Input:       spec.Input,
		Output:      spec.Output,
		Attrs:       spec.Attrs,
		variant:     spec.Variant,
		weights:     weights,
	}, nil
}

// Variant returns the node's layer variant.
func (n *Node) Variant() LayerVariant {
	return n.variant
}

// Weight returns the named tensor, or nil if the node does not own it.
func (n *Node) Weight(name string) *WeightTensor {
	return n.weights[name]
}

// WeightNames returns the names of the node's tensors in sorted order.
func (n *Node) WeightNames() []string {
	return slices.Sorted(maps.Keys(n.weights))
}

// Layout reports whether the node's weights have been rewritten.
func (n *Node) Layout() LayoutState {
	return n.layout
}

// MarkTransformed records that the layout rewrite has run. It is a no-op on
// an already transformed node.
func (n *Node) MarkTransformed() {
	n.layout = LayoutTransformed
}

// Graph is an ordered set of nodes. Passes in this repository mutate nodes in
// place and never change the node set.
type Graph struct {
	Name  string
	nodes []*Node
	index map[string]*Node
}

// New builds a graph, rejecting duplicate node names.
func New(name string, nodes ...*Node) (*Graph, error) {
	g := &Graph{Name: name, index: make(map[string]*Node, len(nodes))}
	for _, n := range nodes {
		if _, dup := g.index[n.Name]; dup {
			return nil, fmt.Errorf("graph %q: duplicate node %q", name, n.Name)
		}
		g.index[n.Name] = n
		g.nodes = append(g.nodes, n)
	}
	return g, nil
}

// Nodes returns the nodes in graph order.
func (g *Graph) Nodes() []*Node {
	return slices.Clone(g.nodes)
}

// Node looks up a node by name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.index[name]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}
