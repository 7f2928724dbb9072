package mqttbus

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	logger        Logger
	metrics       Metrics
	onError       func(*DeliveryError)
	strictFilters bool
}

func defaultDispatcherConfig() *dispatcherConfig {
	return &dispatcherConfig{
		logger:  NewNoOpLogger(),
		metrics: &NoOpMetrics{},
	}
}

// WithLogger sets the logger used to report delivery failures.
func WithLogger(logger Logger) DispatcherOption {
	return func(c *dispatcherConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m Metrics) DispatcherOption {
	return func(c *dispatcherConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithErrorHandler sets a hook called for every failed delivery.
// It runs synchronously on the publishing goroutine.
func WithErrorHandler(fn func(*DeliveryError)) DispatcherOption {
	return func(c *dispatcherConfig) {
		c.onError = fn
	}
}

// WithStrictFilters rejects filters where "#" is not the last level.
func WithStrictFilters() DispatcherOption {
	return func(c *dispatcherConfig) {
		c.strictFilters = true
	}
}
