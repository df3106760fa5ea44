package catalog

import "errors"

var (
	// ErrInvalidArgument signals bad caller input, e.g. a missing file name
	// on the upload-credential operation. Surfaced as a 4xx-style response.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidRecord signals a record that failed field validation. Row
	// level occurrences are logged and dropped; message level occurrences
	// become a MalformedMessage failure.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrNotFound signals a lookup for a catalog entry that does not exist.
	ErrNotFound = errors.New("catalog entry not found")
)
