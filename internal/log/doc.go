/*
Package log provides structured logging for appmgr using zerolog.

A single package-level Logger is configured once via Init and used from
every subsystem through component loggers (WithComponent, WithPackageID,
WithAction) so every line carries enough context to trace back to the
package and action it came from without repeating fields at each call site.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	reconcilerLog := log.WithComponent("reconciler")
	reconcilerLog.Info().Str("package_id", "bitcoind").Msg("synchronized")
*/
package log
