package waterfall

import "fmt"

// ValidationError reports a malformed tier configuration or investor weight
// set. It is always raised before any mutation; nothing is partially applied.
type ValidationError struct {
	StructureID string
	Reason      string
}

func (e *ValidationError) Error() string {
	if e.StructureID == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed for structure %s: %s", e.StructureID, e.Reason)
}

func newValidationError(structureID, format string, args ...interface{}) *ValidationError {
	return &ValidationError{StructureID: structureID, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing structure, distribution or tier.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConflictError reports re-application of an already-applied waterfall, an
// illegal status transition, or loss to a concurrent writer.
type ConflictError struct {
	DistributionID string
	Reason         string
}

func (e *ConflictError) Error() string {
	if e.DistributionID == "" {
		return fmt.Sprintf("conflict: %s", e.Reason)
	}
	return fmt.Sprintf("conflict on distribution %s: %s", e.DistributionID, e.Reason)
}

// ArithmeticError reports cash that no tier can absorb, or a rounding
// reconciliation failure. The latter is a programming-bug-level condition
// and is never silently tolerated.
type ArithmeticError struct {
	Reason string
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("arithmetic error: %s", e.Reason)
}

func newArithmeticError(format string, args ...interface{}) *ArithmeticError {
	return &ArithmeticError{Reason: fmt.Sprintf(format, args...)}
}
