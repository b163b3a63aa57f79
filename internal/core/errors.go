package core

import "errors"

// Error kinds surfaced by the domain core. Callers match them with errors.Is;
// most call sites wrap them with fmt.Errorf("%w: ...") to add detail.
var (
	// ErrInvalidArgument reports a caller-supplied value that violates a
	// precondition (negative limit, date edit on a recurring member, ...).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidTag reports a reference to a tag that does not exist.
	ErrInvalidTag = errors.New("invalid tag")

	// ErrDuplicateTag reports a tag that already exists at the attempted scope.
	ErrDuplicateTag = errors.New("duplicate tag")

	// ErrInitialization reports a required derived value that could not be
	// computed. Fatal to the operation, never to the process.
	ErrInitialization = errors.New("initialization failed")

	// ErrStorage reports a persistence collaborator read/write/decode failure.
	ErrStorage = errors.New("storage failure")
)
