package backend

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/23skdu/longbow-hls/internal/graph"
	"github.com/23skdu/longbow-hls/internal/passes"
	"github.com/23skdu/longbow-hls/internal/templates"
)

var (
	// ErrNotSupported is returned when a node asks for something the target
	// backend cannot generate code for.
	ErrNotSupported = errors.New("not supported")
	// ErrUnknownBackend is returned by Lookup.
	ErrUnknownBackend = errors.New("unknown backend")
)

// Data format tags used in kernel names.
const (
	TagChannelsLast  = "cl"
	TagChannelsFirst = "cf"
)

// Backend is a code generation target.
type Backend struct {
	Name                  string
	SupportsChannelsFirst bool

	passes   []passes.Pass
	registry *templates.Registry
	includes map[graph.Family][]string
}

var familyIncludes = map[graph.Family][]string{
	graph.FamilyDense:     {"nnet_utils/nnet_dense.h"},
	graph.FamilyConv1D:    {"nnet_utils/nnet_conv1d.h"},
	graph.FamilyConv2D:    {"nnet_utils/nnet_conv2d.h"},
	graph.FamilySepConv1D: {"nnet_utils/nnet_sepconv1d.h", "nnet_utils/nnet_conv1d.h"},
	graph.FamilySepConv2D: {"nnet_utils/nnet_sepconv2d.h", "nnet_utils/nnet_conv2d.h"},
	graph.FamilyRecurrent: {"nnet_utils/nnet_recurrent.h"},
	graph.FamilyAttention: {"nnet_utils/nnet_multiheadattention.h"},
	graph.FamilyPooling:   {"nnet_utils/nnet_pooling.h"},
}

// Vivado returns the Vivado HLS target. Its kernels come in both channel orders.
func Vivado() *Backend {
	return &Backend{
		Name:                  "vivado",
		SupportsChannelsFirst: true,
		passes:                []passes.Pass{passes.ResourceStrategy{}},
		registry:              templates.NewRegistry(),
		includes:              familyIncludes,
	}
}

// Quartus returns the Intel Quartus HLS target, which only has channels_last kernels.
func Quartus() *Backend {
	return &Backend{
		Name:     "quartus",
		passes:   []passes.Pass{passes.ResourceStrategy{}},
		registry: templates.NewRegistry(),
		includes: familyIncludes,
	}
}

var constructors = map[string]func() *Backend{
	"vivado":  Vivado,
	"quartus": Quartus,
}

// Names lists the known backends in sorted order.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns a new backend with the given name, ignoring case.
func Lookup(name string) (*Backend, error) {
	fn, ok := constructors[cases.Fold().String(name)]
	if !ok {
		return nil, unknown(name)
	}
	return fn(), nil
}

func unknown(name string) error {
	return fmt.Errorf("%w %q, expected one of %v", ErrUnknownBackend, name, Names())
}

// Set holds one instance of every backend. Backends are read-only after
// construction, so a Set can be shared between goroutines.
type Set struct {
	byName map[string]*Backend
}

// NewSet builds every known backend and checks that each template registry
// renders for all variants.
func NewSet() (*Set, error) {
	s := &Set{byName: make(map[string]*Backend, len(constructors))}
	var errs []error
	for _, name := range Names() {
		b := constructors[name]()
		if err := b.registry.Check(); err != nil {
			errs = append(errs, fmt.Errorf("backend %s: %w", name, err))
			continue
		}
		s.byName[name] = b
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return s, nil
}

// Lookup returns the shared backend with the given name, ignoring case.
func (s *Set) Lookup(name string) (*Backend, error) {
	b, ok := s.byName[cases.Fold().String(name)]
	if !ok {
		return nil, unknown(name)
	}
	return b, nil
}

// Passes returns the rewrite passes that run before rendering.
func (b *Backend) Passes() []passes.Pass {
	return slices.Clone(b.passes)
}

// Registry returns the backend's template registry.
func (b *Backend) Registry() *templates.Registry {
	return b.registry
}

// Validate checks that n can be rendered for b and returns the data format
// tag its invocation uses. Nodes without a data format get the channels_last tag.
func (b *Backend) Validate(n *graph.Node) (string, error) {
	f, ok := n.Attrs.(graph.Formatted)
	if !ok || f.Format() == graph.ChannelsLast {
		return TagChannelsLast, nil
	}
	if !b.SupportsChannelsFirst {
		return "", fmt.Errorf("%w: data_format=%s for %s on node %q",
			ErrNotSupported, f.Format(), b.displayName(), n.Name)
	}
	return TagChannelsFirst, nil
}

// Includes returns the headers an invocation of v needs.
func (b *Backend) Includes(v graph.LayerVariant) []string {
	return slices.Clone(b.includes[v.Family()])
}

func (b *Backend) displayName() string {
	return cases.Title(language.English).String(b.Name)
}

func (b *Backend) String() string {
	return b.Name
}
