// Package handoff moves a URL batch from the originator to the dispatcher
// and the ordered pages back, across a process boundary.
//
// The file protocol uses two files in a shared directory:
//
//	no_file -> batch_written -> launched -> results_written -> consumed -> no_file
//
// The originator writes the batch file, starts the dispatcher process and
// polls for the results file at a fixed interval up to a fixed count. The
// dispatcher reads the batch, fetches every URL and writes the results
// file atomically. The originator reads the results once and deletes both
// files.
//
// Failures the originator can observe:
//
//	ErrBatchTimeout       results never appeared within the poll budget
//	ErrHandoffCorruption  results unreadable or of the wrong length
//	ErrLaunchFailed       the dispatcher could not be started
//
// A dispatcher process that dies mid-batch is seen as ErrBatchTimeout.
//
// RedisExchanger and RedisWorker implement the same exchange over a redis
// list and per-job result keys. InProcess skips the boundary entirely.
package handoff
