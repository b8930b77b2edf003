// Package crawler holds the domain of the TV-guide crawl: the guide's
// payload shapes and their decoder, the timeline that places time-of-day
// start times on absolute dates, resource URL templates, and the interfaces
// the orchestrator depends on (persistence gateway, fetcher, notifier,
// snapshot mirror, description cache).
package crawler
