/*
Package log provides structured logging for shardkv using zerolog.

A single package-level Logger is configured once via Init and shared by every
package; component loggers (WithComponent, WithShard, WithConn) attach
context fields so log lines can be filtered by shard or connection without
threading a logger through every call.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	shardLog := log.WithShard(3)
	shardLog.Info().Uint64("txid", txid).Msg("hop executed")
*/
package log
