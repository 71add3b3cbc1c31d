// Package integration provides integration tests for the school gate.
// These tests run the assembled server on a loopback listener in front of a
// stub site and drive it the way browsers, admin scripts and the identity
// provider's webhook do.
package integration
