// Package metrics contains abstractions for emission of metrics generated throughout the lifetime
// of the application. Supported output engines are statsd and prometheus; both may run at once.
//
// Metrics are generated at various points in time throughout a single query lifecycle, so the
// emissions in this package are structured around the notion of hooks: a hook interface defines
// methods that are invoked by the server's main logic routines while serving a client query.
// Implementations of hook interfaces actually output the metrics to a backend engine; this
// responsibility is decoupled from the semantics of "hooking" into business logic.
package metrics
