// Package limits provides the per-endpoint call limiter used in front of
// the unauthenticated handshake endpoints, which are rate-sensitive on the
// remote side.
//
// Limits are keyed by (path, method). Each key gets an independent cap on
// concurrent in-flight calls and a fixed-rate window; excess callers queue
// in submission order and are released as capacity frees.
//
// # What this package must NOT do
//
//   - Transform errors. The wrapped call's outcome passes through untouched;
//     the limiter only schedules execution.
//   - Be imported outside the finauth module.
package limits
