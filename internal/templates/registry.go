package templates

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/23skdu/longbow-hls/internal/graph"
)

// ErrMissingTemplate means a variant has no registered template or a template
// referenced a value the node could not supply.
var ErrMissingTemplate = errors.New("missing template")

// Registry maps layer variants to config-block and invocation templates.
type Registry struct {
	configs map[graph.LayerVariant]*template.Template
	calls   map[graph.LayerVariant]*template.Template
	// zero holds the attribute record each variant renders against in Check.
	zero map[graph.LayerVariant]graph.Attributes
}

// NewRegistry creates a registry with every supported layer family.
func NewRegistry() *Registry {
	r := &Registry{
		configs: make(map[graph.LayerVariant]*template.Template),
		calls:   make(map[graph.LayerVariant]*template.Template),
		zero:    make(map[graph.LayerVariant]graph.Attributes),
	}

	r.registerDense()
	r.registerConv()
	r.registerRecurrent()
	r.registerAttention()
	r.registerPooling()

	return r
}

// Register adds the templates for one variant. zero is a record of the
// variant's attribute type. It panics if either template fails to parse.
func (r *Registry) Register(v graph.LayerVariant, zero graph.Attributes, config, call string) {
	r.configs[v] = parse(v.String()+".config", config)
	r.calls[v] = parse(v.String()+".call", call)
	r.zero[v] = zero
}

func parse(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=error").Parse(text))
}

// Has reports whether both templates exist for v.
func (r *Registry) Has(v graph.LayerVariant) bool {
	_, c := r.configs[v]
	_, f := r.calls[v]
	return c && f
}

// Config renders the configuration block for n.
func (r *Registry) Config(n *graph.Node) (string, error) {
	t, ok := r.configs[n.Variant()]
	if !ok {
		return "", fmt.Errorf("%w: no config template for %s", ErrMissingTemplate, n.Variant())
	}
	return render(t, n.Variant(), configParams(n))
}

// Call renders the invocation expression for n with the given data format tag.
func (r *Registry) Call(n *graph.Node, dataFormat string) (string, error) {
	t, ok := r.calls[n.Variant()]
	if !ok {
		return "", fmt.Errorf("%w: no call template for %s", ErrMissingTemplate, n.Variant())
	}
	return render(t, n.Variant(), callParams(n, dataFormat))
}

func render(t *template.Template, v graph.LayerVariant, params any) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, params); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMissingTemplate, v, err)
	}
	return sb.String(), nil
}

// Check renders both templates of every variant against a zero-value record.
// The returned error joins one entry per missing or failing template.
func (r *Registry) Check() error {
	var errs []error
	for _, v := range graph.Variants() {
		if !r.Has(v) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingTemplate, v))
			continue
		}
		cp := ConfigParams{Index: 1, Attrs: r.zero[v], ReuseFactor: 1, Strategy: defaultStrategy}
		if _, err := render(r.configs[v], v, cp); err != nil {
			errs = append(errs, err)
		}
		fp := CallParams{
			Config:     "config1",
			InputType:  "input_t",
			OutputType: "result_t",
			Input:      "input",
			Output:     "output",
			DataFormat: "cl",
			Strategy:   defaultStrategy,
			Weights:    weightSymbols(v, 1),
			declared:   graph.DeclaredWeights(v),
		}
		if _, err := render(r.calls[v], v, fp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
