// Package errors provides the sentinel errors and fallback error
// classification shared by the sched packages.
//
// The parsing engine itself surfaces a single caller error, ErrUnknownEngine.
// Everything else about malformed transcripts degrades to dropped or flagged
// records. The remaining sentinels serve the CLI, configuration and
// credential layers.
//
// Usage:
//
//	import scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
//
//	engine, err := schedule.ParseEngine(flag)
//	if scherrors.IsUnknownEngine(err) {
//	    // reject the flag value
//	}
package errors

import "errors"

var (
	// ErrUnknownEngine indicates an engine selector outside classic, hybrid
	// and ai_only.
	ErrUnknownEngine = errors.New("unknown engine")

	// ErrValidation indicates invalid input or configuration.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a requested file or stored value does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotConfigured indicates an optional collaborator (LLM provider,
	// cache) was requested but has no configuration.
	ErrNotConfigured = errors.New("not configured")

	// ErrNoInput indicates no transcript text was supplied.
	ErrNoInput = errors.New("no input")
)

// IsUnknownEngine reports whether any error in err's chain is ErrUnknownEngine.
func IsUnknownEngine(err error) bool {
	return errors.Is(err, ErrUnknownEngine)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNotConfigured reports whether any error in err's chain is ErrNotConfigured.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// IsNoInput reports whether any error in err's chain is ErrNoInput.
func IsNoInput(err error) bool {
	return errors.Is(err, ErrNoInput)
}
