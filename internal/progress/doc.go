// Package progress keeps the human-readable record of a crawl run, the cursor
// locating the unit in flight, and the reporter that hands the finished record
// to its sinks: the run log in persistence first, then the notification.
package progress
