// Package storage defines the persistence contract the finauth client uses
// for its keypair, installation, device, and session state, plus two
// backends: an in-process map for tests and single-binary tools, and a
// Redis-backed store for anything that must survive a restart on another
// host.
//
// # What this package must NOT do
//
//   - Interpret the values it stores. Everything is an opaque string; the
//     session codec owns the format.
//   - Retry or mask backend failures. Unavailability is reported as
//     [ErrUnavailable] and the caller decides.
package storage
