package pk

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Use errors.Is against these to classify a failure.
var (
	// ErrInvalidInput marks malformed input: bad weight, bad sample grid,
	// out-of-domain theta or hold time, masses that do not belong to the
	// compound.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupported marks a route/compound pair with no kinetic function.
	ErrUnsupported = errors.New("unsupported configuration")

	// ErrNotConvertible is returned when an estradiol equivalent is requested
	// for a compound that has none.
	ErrNotConvertible = errors.New("compound has no estradiol equivalent")
)

// NoDose is the DoseIndex of errors not tied to a dose in a collection.
const NoDose = -1

// Error describes a validation failure with enough context to point at the
// offending dose and field.
type Error struct {
	Kind      error
	DoseIndex int
	Field     string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	b.WriteString(": ")
	if e.DoseIndex >= 0 {
		fmt.Fprintf(&b, "dose[%d]", e.DoseIndex)
		if e.Field != "" {
			b.WriteByte('.')
		}
	}
	if e.Field != "" {
		b.WriteString(e.Field)
	}
	if e.DoseIndex >= 0 || e.Field != "" {
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalid(field, format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidInput, DoseIndex: NoDose, Field: field, Message: fmt.Sprintf(format, args...)}
}

func unsupported(field, format string, args ...any) *Error {
	return &Error{Kind: ErrUnsupported, DoseIndex: NoDose, Field: field, Message: fmt.Sprintf(format, args...)}
}

// atDose returns a copy of err tagged with a dose index. Non-pk errors are
// wrapped as invalid input.
func atDose(err error, index int) error {
	var pe *Error
	if errors.As(err, &pe) {
		cp := *pe
		cp.DoseIndex = index
		return &cp
	}
	return &Error{Kind: ErrInvalidInput, DoseIndex: index, Message: "invalid dose", Err: err}
}
