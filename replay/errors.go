package replay

import "github.com/pkg/errors"

var (
	// ErrConfiguration is returned for malformed or inconsistent discretizer
	// or algorithm configuration: mismatched lengths, non-positive bin size,
	// unresolvable position range.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFitted is returned when an operation needs a fitted environment
	ErrNotFitted = errors.New("environment is not fitted")
	// ErrInvalidInput is returned for empty, all-NaN or shape-mismatched data
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownAlgorithm is returned by registry lookups that miss
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	// ErrNumericOverflow is returned when a log-likelihood turns out NaN
	ErrNumericOverflow = errors.New("numeric overflow")
	// ErrDeviceUnavailable is returned by accelerated backends that cannot
	// serve a call. There is no silent fallback to the CPU backend.
	ErrDeviceUnavailable = errors.New("compute device unavailable")
)
