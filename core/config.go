package core

// Config holds configuration options for a Scheduler handle.
// All handlers are optional; if not provided, default implementations
// will be used.
type Config struct {
	// ForceSingleThread disables the worker pool entirely. Parallel
	// assignments then execute inline on the driver during Advance.
	// Intended for debugging nondeterministic workloads.
	ForceSingleThread bool

	// Workers overrides the detected worker count when positive.
	// Ignored when ForceSingleThread is set.
	Workers int

	// PinWorkers pins each worker goroutine's OS thread to a CPU.
	// Best effort; unsupported platforms log and continue.
	PinWorkers bool

	// HistoryCapacity bounds the retained parallel batch records.
	HistoryCapacity int

	// PanicHandler is called when a callback panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics records scheduler metrics. Defaults to NilMetrics.
	Metrics Metrics

	// Logger receives diagnostic output. Defaults to DefaultLogger.
	Logger Logger

	// RejectedTaskHandler is called when a task is rejected. Defaults to
	// DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler
}

// DefaultConfig returns a config with default handlers and detected sizing.
func DefaultConfig() Config {
	return Config{
		HistoryCapacity:     defaultBatchHistoryCapacity,
		PanicHandler:        &DefaultPanicHandler{},
		Metrics:             &NilMetrics{},
		Logger:              NewDefaultLogger(),
		RejectedTaskHandler: &DefaultRejectedTaskHandler{},
	}
}

func (c *Config) fillDefaults() {
	if c.HistoryCapacity < 1 {
		c.HistoryCapacity = defaultBatchHistoryCapacity
	}
	if c.PanicHandler == nil {
		c.PanicHandler = &DefaultPanicHandler{}
	}
	if c.Metrics == nil {
		c.Metrics = &NilMetrics{}
	}
	if c.Logger == nil {
		c.Logger = NewDefaultLogger()
	}
	if c.RejectedTaskHandler == nil {
		c.RejectedTaskHandler = &DefaultRejectedTaskHandler{}
	}
}
