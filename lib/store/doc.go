// Package store provides the shared error type the distributed TTL map
// (dttlmap) and group (dgroup) client packages report operation failures
// with: a typed return code plus a message, so callers can branch on the
// failure kind instead of matching error strings.
package store
