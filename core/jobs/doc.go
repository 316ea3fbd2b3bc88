// Package jobs runs persisted background jobs.
//
// Jobs are rows in the jobs table. Enqueue stores a queued job and hands its id
// to the worker pool over a channel; a poller re-dispatches queued ids so jobs
// survive a full queue or a restart. A worker claims a job with a conditional
// update before running it, so an id dispatched twice runs once.
//
// Handlers receive a context that is cancelled by Cancel. They are expected to
// stop scheduling new work when it is done and return promptly.
package jobs
