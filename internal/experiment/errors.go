package experiment

import "errors"

var (
	// ErrNotFound indicates an unknown experiment or enrollment.
	ErrNotFound = errors.New("not found")

	// ErrNotRunning indicates an assignment was attempted outside the
	// running state. Callers decide the fallback (usually no treatment).
	ErrNotRunning = errors.New("experiment not running")

	// ErrInvalidConfig indicates the experiment has no usable variant set:
	// zero total weight or no designated control. Fatal to the attempt.
	ErrInvalidConfig = errors.New("invalid experiment configuration")

	// ErrInvalidArgument indicates a malformed request, e.g. a negative
	// conversion value or an unknown event kind.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateEnrollment is returned by the store when an insert loses
	// the first-assignment race. The engine recovers by re-reading the
	// winning enrollment; callers never see this error.
	ErrDuplicateEnrollment = errors.New("enrollment already exists")
)
