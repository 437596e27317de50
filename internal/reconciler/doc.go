/*
Package reconciler drives a package's observed container state toward its
desired MainStatus and keeps dependency satisfaction up to date.

Two independent loops run on a fixed cooldown:

Synchronize reads each installed package's desired MainStatus and the
container runtime's observed state for its container, and applies the
required transition (start or stop). If a
container is still observed running after a successful stop, the sweep
records a runtime anomaly and calls the container runtime's Restart
exactly once, no matter how many containers were anomalous. The
containerd client (internal/runtime.Client) implements Restart by
reconnecting to the containerd socket; the containerd process itself is
not restarted.

Health concurrently runs every Running package's declared health check and
interface checks, replaces its status's health map, emits a notification
and transitions to Stopping for any failing check declared critical, and
finally recomputes every package's dependency satisfaction via
internal/dependency and persists it — the only path by which a package's
status.dependencies is kept current with a dependency's own status
changes.

Both loops operate on a snapshot of the installed-package set taken at
loop entry; a package installed mid-tick is only picked up the following
tick.
*/
package reconciler
