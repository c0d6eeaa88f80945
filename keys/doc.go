// Package keys owns the client RSA keypair: generation, persistence through
// the storage collaborator, reuse across restarts, and forced regeneration
// when the remote rejects the key as a duplicate.
//
// The keypair is the root of the installation handshake. The remote treats
// the public key as a uniqueness key, so regeneration is only ever triggered
// by the installer, never spontaneously.
package keys
