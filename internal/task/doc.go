// Package task implements the background task processing engine: a
// persisted job queue with priority ordering, per-task-type failure
// isolation via circuit breakers, and exponential-backoff retry.
// Workers claim eligible tasks from a TaskStore, dispatch them through
// a handler registry, and write results back so no task is silently
// stranded in the running state.
package task
