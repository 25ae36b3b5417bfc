package fs

import "errors"

// Error taxonomy surfaced by filesystem operations. Backend-level failures
// (store.RejectedError, store.BackendError) propagate unchanged; transfer
// cancellation surfaces as transfer.ErrTransferCancelled.
var (
	// ErrNotFound reports that a path resolves to nothing. Internally it is
	// often a continuation signal; Stat and Open surface it to callers.
	ErrNotFound = errors.New("no such file or directory")

	// ErrAlreadyExists reports a create without overwrite on an existing
	// path, or a directory create colliding with a file.
	ErrAlreadyExists = errors.New("path already exists")

	// ErrNotEmptyDirectory reports a non-recursive delete of a populated
	// directory.
	ErrNotEmptyDirectory = errors.New("directory is not empty")

	// ErrIllegalRenameTarget reports a type-mismatched or cyclic rename
	// destination. Rename itself signals these cases with a false return;
	// the gateway uses this error to explain the refusal.
	ErrIllegalRenameTarget = errors.New("illegal rename target")
)
