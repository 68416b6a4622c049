// Package memcache implements the memcache text protocol (spec.md §6):
// newline-terminated commands, a "set" that replies STORED/NOT_STORED/
// CLIENT_ERROR/ERROR, and a "get" that streams zero or more VALUE lines
// terminated by END.
package memcache
