// Package hub holds the in-memory per-symbol caches that sit between the
// upstream sessions and the consumers. Every hub is safe for concurrent
// use and independent of the others.
package hub
