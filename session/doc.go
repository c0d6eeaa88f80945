// Package session holds the client's persisted credential state: the
// installation record, the device registration, and the current session
// token with its computed expiry. The three stages form a strict chain —
// absence of an earlier stage invalidates every later one.
//
// The state is serialized as one versioned JSON document and written through
// the storage collaborator after every mutation, keyed by a stable client
// identity, so a restarted process resumes exactly where it left off.
//
// # What this package must NOT do
//
//   - Talk to the network. State transitions are driven by the root client;
//     this package only models and persists them.
package session
