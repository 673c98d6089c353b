// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrStaleCursor means an enrollment's cursor moved between selection and
// execution, so another invocation already ran the step.
var ErrStaleCursor = errors.New("enrollment cursor changed since selection")

// ErrInvalidCredentials is returned by login for unknown email or wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrNotFound reports a missing entity of the given kind.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Kind, e.ID)
}

// Helper constructors
func NewSequenceNotFound(id fmt.Stringer) error {
	return &ErrNotFound{Kind: "sequence", ID: id.String()}
}

func NewEnrollmentNotFound(id fmt.Stringer) error {
	return &ErrNotFound{Kind: "enrollment", ID: id.String()}
}

func NewLeadNotFound(id fmt.Stringer) error {
	return &ErrNotFound{Kind: "lead", ID: id.String()}
}

func NewTemplateNotFound(id fmt.Stringer) error {
	return &ErrNotFound{Kind: "template", ID: id.String()}
}

func NewOutboundMessageNotFound(id fmt.Stringer) error {
	return &ErrNotFound{Kind: "outbound message", ID: id.String()}
}

// IsNotFound reports whether err wraps an *ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

// ErrValidation wraps request validation failures.
type ErrValidation struct {
	Msg string
}

func (e *ErrValidation) Error() string {
	return e.Msg
}

func NewValidation(format string, args ...any) error {
	return &ErrValidation{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ErrValidation
	return errors.As(err, &v)
}
