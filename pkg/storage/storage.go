// Package storage defines the durable capabilities the pipeline consumes and
// ships host-side implementations of both: a plain key-value store for the
// offline spool and a secure store for the install identity. The pipeline
// core only ever sees the interfaces, so hosts on platforms with their own
// storage (encrypted preferences, app-group containers, remote config) can
// substitute freely.
package storage

import "errors"

// ErrNotFound is returned by Get when no value exists under the key.
var ErrNotFound = errors.New("storage: key not found")

// Store is a durable key-value capability. Set must replace the value
// atomically: after a crash at any point, a reader observes either the
// previous value or the new one, never a torn write.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// SecureStore holds small secrets (the durable user identity) in
// platform-protected storage. Implementations are expected to delegate
// protection to the host platform; the pipeline never encrypts anything
// itself.
type SecureStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}
