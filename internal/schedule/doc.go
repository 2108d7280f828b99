// Package schedule provides utilities for cron expression handling and deferred execution.
//
// Cron functions parse and validate cron expressions and compute upcoming run times.
// RunAt executes a function asynchronously at a specified time, and RunCron
// repeats one on a cron expression. Scheduler uses RunCron to play clips.
package schedule
