// Package scheduler runs a job periodically on its own goroutine.
//
// A Scheduler owns at most one loop at a time. Start runs the job once
// immediately and then on every tick; Stop cancels the pending tick without
// aborting a job that is already running. Ticks that fire while a job is
// still running are skipped, and jobs from successive loops never overlap.
package scheduler
