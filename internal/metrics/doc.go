/*
Package metrics exposes appmgr's Prometheus instrumentation: reconciliation
cycle timing, health check outcomes, dependency-break counters, action
invocation timing, and install/configure durations. Metrics are registered
at package init and served over HTTP via Handler().

The Timer helper is carried from the reconciliation-timing pattern used
throughout this codebase: start a timer, perform the operation, observe its
duration into a histogram (optionally with label values for a vector).
*/
package metrics
