package templates

import "github.com/23skdu/longbow-hls/internal/graph"

const pooling1DConfig = `struct config{{.Index}} : nnet::pooling1d_config {
    static const unsigned stride_width = {{.Attrs.StrideWidth}};
    static const unsigned pool_width = {{.Attrs.PoolWidth}};

    static const unsigned n_in = {{.Attrs.NIn}};
    static const unsigned n_out = {{.Attrs.NOut}};

    static const unsigned n_filt = {{.Attrs.NFilt}};

    static const unsigned pad_left = {{.Attrs.PadLeft}};
    static const unsigned pad_right = {{.Attrs.PadRight}};

    static const nnet::Pool_Op pool_op = nnet::{{.Attrs.PoolOp}};
};
`

const pooling2DConfig = `struct config{{.Index}} : nnet::pooling2d_config {
    static const unsigned stride_height = {{.Attrs.StrideHeight}};
    static const unsigned stride_width = {{.Attrs.StrideWidth}};

    static const unsigned pool_height = {{.Attrs.PoolHeight}};
    static const unsigned pool_width = {{.Attrs.PoolWidth}};

    static const unsigned in_height = {{.Attrs.InHeight}};
    static const unsigned in_width = {{.Attrs.InWidth}};
    static const unsigned out_height = {{.Attrs.OutHeight}};
    static const unsigned out_width = {{.Attrs.OutWidth}};

    static const unsigned n_filt = {{.Attrs.NFilt}};

    static const unsigned pad_top = {{.Attrs.PadTop}};
    static const unsigned pad_bottom = {{.Attrs.PadBottom}};
    static const unsigned pad_left = {{.Attrs.PadLeft}};
    static const unsigned pad_right = {{.Attrs.PadRight}};

    static const nnet::Pool_Op pool_op = nnet::{{.Attrs.PoolOp}};
};
`

const globalPooling1DConfig = `struct config{{.Index}} : nnet::pooling1d_config {
    static const unsigned n_in = {{.Attrs.NIn}};
    static const unsigned n_filt = {{.Attrs.NFilt}};
    static const nnet::Pool_Op pool_op = nnet::{{.Attrs.PoolOp}};
};
`

const globalPooling2DConfig = `struct config{{.Index}} : nnet::pooling2d_config {
    static const unsigned in_height = {{.Attrs.InHeight}};
    static const unsigned in_width = {{.Attrs.InWidth}};
    static const unsigned n_filt = {{.Attrs.NFilt}};
    static const nnet::Pool_Op pool_op = nnet::{{.Attrs.PoolOp}};
};
`

// kernelCall is the invocation shape shared by kernels that take only the
// activation buffers.
func kernelCall(prefix string) string {
	return `nnet::` + prefix + `_{{.DataFormat}}<{{.InputType}}, {{.OutputType}}, {{.Config}}>({{.Input}}, {{.Output}});`
}

// registerPooling adds the pooling layers to the registry.
func (r *Registry) registerPooling() {
	r.Register(graph.Pooling1D, graph.Pooling1DAttrs{}, pooling1DConfig, kernelCall("pooling1d"))
	r.Register(graph.Pooling2D, graph.Pooling2DAttrs{}, pooling2DConfig, kernelCall("pooling2d"))
	r.Register(graph.GlobalPooling1D, graph.GlobalPooling1DAttrs{}, globalPooling1DConfig, kernelCall("global_pooling1d"))
	r.Register(graph.GlobalPooling2D, graph.GlobalPooling2DAttrs{}, globalPooling2DConfig, kernelCall("global_pooling2d"))
}
