/*
Package daemon wires every other internal package into one process-wide
orchestrator: the single long-lived object cmd/appmgrd constructs at startup
and cmd/appmgrctl talks to (today in-process; nothing here assumes that
can't later sit behind a socket).

A Daemon owns:

  - the database (internal/db), the single source of truth for installed
    package records, host metadata, and the broken-package set
  - the container runtime (internal/runtime), the IP pool
    (internal/network), and the action dispatcher (internal/action) built
    on top of them
  - the volume resolver (internal/volume)
  - the event broker (internal/events) and metrics collector
    (internal/metrics)
  - the reconciler (internal/reconciler), whose Synchronize and Health
    loops run continuously once Start is called

Daemon's own methods implement the package lifecycle operations:
Install unpacks and validates an s9pk, loads its images, creates
its container, and runs it through internal/configure.Configure for its
first configuration; StartPackage/StopPackage flip a package's desired MainStatus and let
the reconciler converge to it; ConfigGet returns a package's stored config;
ConfigSet runs internal/configure.Configure to propagate the change and then
each configured package's own config set action; Remove tears a package's
container, volumes, and IP lease down and deletes its record.

Each operation reads and writes the database through internal/db.View and
internal/db.Update calls (some, such as Install, Remove, Backup and Restore,
use more than one). The adapters in store_adapter.go give the narrow shapes
the other packages expect without them needing to know this package's
storage format: txStore wraps one *db.Tx for internal/configure, while
dbReconcilerStore and statusSource serve internal/reconciler and
internal/metrics against the whole database.
*/
package daemon
