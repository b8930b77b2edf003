// Package sinks implements the run report destinations: the persistent run
// log, email through a Notifier, and structured logging. Each sink satisfies
// the progress.Sink interface.
package sinks
