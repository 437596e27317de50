/*
Package health runs the liveness probes the reconciler's health loop
drives and classifies their outcomes.

Two checker types share one Checker interface (Check(ctx) Result, Type()
CheckType): Action — a manifest-declared health-check container, the kind
most appmgr packages' main liveness probe is — and Interface, a plain TCP
reachability probe against one manifest-declared Interface's bound
address and port, run alongside the main check. An Action check that exits 59 is reported as
Disabled rather than failed: the check doesn't apply yet, and neither
counts toward a package's consecutive-failure threshold nor trips a
critical-check transition.

Status implements a hysteresis any checker's results can be fed through: a
run of Retries consecutive failures is required before its Healthy flips
false. The reconciler's health loop does not use Status; it records each
check's latest Result as is.
*/
package health
