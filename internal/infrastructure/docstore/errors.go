package docstore

import "errors"

// Errors surfaced by the document store. Domain packages wrap these so
// callers can classify failures with errors.Is.
var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: not found")

	// ErrValidation is returned for malformed input rejected before any I/O.
	ErrValidation = errors.New("docstore: validation failed")

	// ErrStore is returned when the backend fails (connectivity, permission, I/O).
	ErrStore = errors.New("docstore: store failure")
)
