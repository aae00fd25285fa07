package templates

import "github.com/23skdu/longbow-hls/internal/graph"

const conv1DConfig = `struct config{{.Index}} : nnet::conv1d_config {
    static const unsigned pad_left = {{.Attrs.PadLeft}};
    static const unsigned pad_right = {{.Attrs.PadRight}};
    static const unsigned in_width = {{.Attrs.InWidth}};
    static const unsigned n_chan = {{.Attrs.NChan}};
    static const unsigned filt_width = {{.Attrs.FiltWidth}};
    static const unsigned n_filt = {{.Attrs.NFilt}};
    static const unsigned stride_width = {{.Attrs.StrideWidth}};
    static const unsigned out_width = {{.Attrs.OutWidth}};
    static const unsigned reuse_factor = {{.ReuseFactor}};
    static const unsigned strategy = nnet::{{.Strategy}};
};
`

const conv2DConfig = `struct config{{.Index}} : nnet::conv2d_config {
    static const unsigned pad_top = {{.Attrs.PadTop}};
    static const unsigned pad_bottom = {{.Attrs.PadBottom}};
    static const unsigned pad_left = {{.Attrs.PadLeft}};
    static const unsigned pad_right = {{.Attrs.PadRight}};
    static const unsigned in_height = {{.Attrs.InHeight}};
    static const unsigned in_width = {{.Attrs.InWidth}};
    static const unsigned n_chan = {{.Attrs.NChan}};
    static const unsigned filt_height = {{.Attrs.FiltHeight}};
    static const unsigned filt_width = {{.Attrs.FiltWidth}};
    static const unsigned n_filt = {{.Attrs.NFilt}};
    static const unsigned stride_height = {{.Attrs.StrideHeight}};
    static const unsigned stride_width = {{.Attrs.StrideWidth}};
    static const unsigned out_height = {{.Attrs.OutHeight}};
    static const unsigned out_width = {{.Attrs.OutWidth}};
    static const unsigned reuse_factor = {{.ReuseFactor}};
    static const unsigned strategy = nnet::{{.Strategy}};
};
`

// convCall is the invocation of a kernel taking one weight array and a bias.
func convCall(prefix string) string {
	return `nnet::` + prefix + `_{{.DataFormat}}<{{.InputType}}, {{.OutputType}}, {{.Config}}>` +
		`({{.Input}}, {{.Output}}, {{.Weight "weight"}}, {{.Weight "bias"}});`
}

func separableCall(prefix string) string {
	return `nnet::` + prefix + `_{{.DataFormat}}<{{.InputType}}, {{.OutputType}}, {{.Config}}>` +
		`({{.Input}}, {{.Output}}, {{.Weight "depthwise"}}, {{.Weight "pointwise"}}, {{.Weight "bias"}});`
}

// registerConv adds the convolution layers, plain and separable.
func (r *Registry) registerConv() {
	r.Register(graph.Conv1D, graph.Conv1DAttrs{}, conv1DConfig, convCall("conv_1d"))
	r.Register(graph.Conv2D, graph.Conv2DAttrs{}, conv2DConfig, convCall("conv_2d"))
	r.Register(graph.SeparableConv1D, graph.Conv1DAttrs{}, conv1DConfig, separableCall("separable_conv_1d"))
	r.Register(graph.SeparableConv2D, graph.Conv2DAttrs{}, conv2DConfig, separableCall("separable_conv_2d"))
}
