/*
Package configure implements the cross-package configuration propagation
algorithm: setting one package's config, checking whether every
other installed package that depends on it still has its requirements
satisfied, repairing what can be auto-repaired, and recursively propagating
further where a repair (or a resolved Pointer) changed a dependent's own
config in turn.

Configure never talks to the database or the action dispatcher directly —
it's driven entirely through the Store and Runner interfaces so it can run
identically against a real internal/db transaction and internal/action
Dispatcher (wired by internal/daemon) or against an in-memory fake in tests.
The whole call is expected to run inside a single internal/db.Update
transaction; a caller that wants to preview the result without committing
runs Configure normally and then returns db.ErrDryRun from its Update
callback instead of nil.
*/
package configure
