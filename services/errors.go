// services/errors.go
package services

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by all services. Handlers translate these with
// errors.Is / errors.As; everything else is an internal error.
var (
	// ErrNotFound — unknown match, paper or agent reference.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized — mutating call without a verified identity and
	// without an explicit anonymous flag.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAgentUnavailable — the external reviewer service could not be
	// reached. Absorbed by the orchestrator (placeholder outcome policy),
	// never surfaced to API callers.
	ErrAgentUnavailable = errors.New("agent runner unavailable")
)

// ValidationError rejects a malformed request (bad match spec, empty
// comment, unknown reaction kind).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
