package turbonerf

// Option configures a NeRFRenderingController during construction.
//
// Example:
//
//	// Defaults: LinearChunks, engine-chosen batch size.
//	ctrl, err := turbonerf.New()
//
//	// Tiled partitioning over exactly 8 contexts.
//	ctrl, err := turbonerf.New(
//	    turbonerf.WithPattern(turbonerf.RectangularTiles),
//	    turbonerf.WithBatchSize(8),
//	)
type Option func(*options)

// options holds optional configuration for controller creation.
type options struct {
	pattern          RenderPattern
	batchSize        int
	engine           Engine
	provider         DeviceHandle
	completionBuffer int
}

// defaultOptions returns the default controller options.
func defaultOptions() options {
	return options{
		pattern:   LinearChunks,
		batchSize: 0, // 0 = engine-chosen
	}
}

// WithPattern sets the chunking pattern used to partition requests.
func WithPattern(p RenderPattern) Option {
	return func(o *options) {
		o.pattern = p
	}
}

// WithBatchSize fixes the number of execution contexts. Zero (the default)
// lets the engine pick a size appropriate to available device resources.
func WithBatchSize(n int) Option {
	return func(o *options) {
		o.batchSize = n
	}
}

// WithEngine injects an execution engine, bypassing the registered default.
// Use this for dependency injection of custom or test engines. The caller
// keeps ownership of the engine; closing the controller does not close it.
func WithEngine(e Engine) Option {
	return func(o *options) {
		o.engine = e
	}
}

// WithDeviceProvider lends a host application's GPU device to the engine so
// the controller shares it instead of opening a second device. The engine
// must implement DeviceProviderAware; New fails otherwise.
//
// Example:
//
//	ctrl, err := turbonerf.New(
//	    turbonerf.WithDeviceProvider(app.GPUContextProvider()),
//	)
func WithDeviceProvider(h DeviceHandle) Option {
	return func(o *options) {
		o.provider = h
	}
}

// WithCompletionBuffer sets the capacity of the Completions channel.
// Defaults to twice the batch size.
func WithCompletionBuffer(n int) Option {
	return func(o *options) {
		o.completionBuffer = n
	}
}
