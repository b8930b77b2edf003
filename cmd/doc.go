// Package cmd defines the epgcrawler CLI: a one-shot "run", a long-lived
// "schedule" with its HTTP surface, and "migrate" for the database schema.
package cmd
