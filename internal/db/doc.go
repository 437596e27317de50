/*
Package db persists appmgr's single database document — one model.Database
value holding every package's record plus host-wide server info — using
BoltDB (bbolt) for ACID transactions.

Unlike a cluster store with one bucket per entity kind, appmgr manages
exactly one host and one logical document, so the whole model.Database is
kept JSON-encoded under a single key in a single bucket. A transaction
decodes that document once, hands the caller a mutable *model.Database to
read or change; View never writes, and a successful Update re-encodes the
document and writes it back atomically. This gives the configure() propagation algorithm (which
touches several packages' config and dependency state in one pass) the
same guarantee a multi-bucket transaction would: either every change in
the Update lands, or — on dry-run or on error — none of them do.

Read transactions (View) use bbolt's MVCC snapshot isolation so a long
configure() dry-run never blocks concurrent reads from the reconciler or
the metrics collector. Write transactions (Update) are serialized by bbolt.
*/
package db
