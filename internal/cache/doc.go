// Package cache holds DescriptionCache implementations. The memory
// subpackage keeps descriptions for the life of the process; the redis
// subpackage shares them across runs and hosts.
package cache
