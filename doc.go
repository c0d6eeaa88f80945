// Package finauth manages signed sessions against a remote financial API:
// the asymmetric-key installation handshake, per-device registration,
// request signing and response verification, and short-lived session tokens
// that renew themselves ahead of expiry.
//
// The package is designed for concurrent callers: after [Builder.Build],
// every [Client] method is safe from multiple goroutines, and session
// renewal is single-flight — concurrent callers share one round trip and
// one outcome.
//
// # Architecture boundaries
//
// finauth is the public surface. It exposes [Client], [Builder], [Config],
// the error enumeration, and value types (SessionInfo, AuditEvent,
// MetricsSnapshot). Key lifecycle, signature encoding, principal
// classification, persisted state, and request limiting live in
// sub-packages; the limiter is internal/ and never exported.
//
// # What this package must NOT do
//
//   - Define per-resource REST bindings. Those are generated elsewhere and
//     consume the session this package maintains.
//   - Swallow signature verification failures. A mismatched response
//     signature is fatal and surfaces to the caller every time.
//   - Retry session creation internally. Failures are wrapped with
//     [ErrSessionCreationFailed], the original cause preserved, and the
//     caller decides.
package finauth
