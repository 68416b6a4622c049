// Package resp implements the RESP-family wire protocol (spec.md §6): a
// request is an array of bulk strings, a reply is one of simple string,
// error, integer, bulk string, array, or (once a connection has upgraded
// via HELLO 3) the RESP3 container kinds — set, map, push, double, and a
// dedicated null. A connection that hasn't upgraded gets RESP2-compatible
// flattening: maps become 2n-element arrays, doubles become bulk strings.
package resp
