// Package events defines the task lifecycle event stream and its
// in-process fan-out. The task processor emits one event per task
// completion, failure, retry, and circuit transition; registered
// handlers turn those events into structured log lines and Prometheus
// metrics without the processor knowing about either.
package events
