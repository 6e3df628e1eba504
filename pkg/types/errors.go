package types

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this module matches exactly one kind
// through errors.Is.
var (
	ErrSchema            = errors.New("schema error")
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("referential conflict")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrTransport         = errors.New("transport error")
)

// Kinds lists every error kind in classification order.
var Kinds = []error{
	ErrSchema,
	ErrValidation,
	ErrConflict,
	ErrIllegalTransition,
	ErrNotFound,
	ErrForbidden,
	ErrTransport,
}

// kindNames are the stable wire names of the kinds.
var kindNames = map[error]string{
	ErrSchema:            "schema",
	ErrValidation:        "validation",
	ErrConflict:          "conflict",
	ErrIllegalTransition: "illegal_transition",
	ErrNotFound:          "not_found",
	ErrForbidden:         "forbidden",
	ErrTransport:         "transport",
}

// KindName returns the wire name of err's kind, or "" for a nil err.
func KindName(err error) string {
	if err == nil {
		return ""
	}
	return kindNames[KindOf(err)]
}

// KindByName returns the kind with the given wire name. Unknown names map
// to ErrTransport.
func KindByName(name string) error {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return ErrTransport
}

// Code is a specific error condition belonging to one kind. A Code matches
// errors.Is against itself and against its kind.
type Code struct {
	name string
	kind error
}

func newCode(kind error, name string) *Code {
	c := &Code{name: name, kind: kind}
	codes[name] = c
	return c
}

var codes = map[string]*Code{}

func (c *Code) Error() string { return c.name }

// Name returns the stable identifier of the code.
func (c *Code) Name() string { return c.name }

// Kind returns the kind the code belongs to.
func (c *Code) Kind() error { return c.kind }

// Is reports whether target is this code's kind.
func (c *Code) Is(target error) bool { return target == c.kind }

// Schema errors: configuration bugs, never retried.
var (
	ErrDuplicatePreset           = newCode(ErrSchema, "DuplicatePreset")
	ErrDuplicateFieldName        = newCode(ErrSchema, "DuplicateFieldName")
	ErrDuplicateFieldSmartCode   = newCode(ErrSchema, "DuplicateFieldSmartCode")
	ErrDuplicateRelationshipType = newCode(ErrSchema, "DuplicateRelationshipType")
	ErrUnknownEntityType         = newCode(ErrSchema, "UnknownEntityType")
	ErrInvalidPreset             = newCode(ErrSchema, "InvalidPreset")
)

// Validation errors: surfaced immediately, not retried.
var (
	ErrMissingRequiredField    = newCode(ErrValidation, "MissingRequiredField")
	ErrTypeMismatch            = newCode(ErrValidation, "TypeMismatch")
	ErrCardinalityViolation    = newCode(ErrValidation, "CardinalityViolation")
	ErrUnknownField            = newCode(ErrValidation, "UnknownField")
	ErrUnknownRelationshipType = newCode(ErrValidation, "UnknownRelationshipType")
	ErrInvalidSmartCode        = newCode(ErrValidation, "InvalidSmartCode")
	ErrInvalidName             = newCode(ErrValidation, "InvalidName")
	ErrInvalidID               = newCode(ErrValidation, "InvalidID")
	ErrInvalidStatus           = newCode(ErrValidation, "InvalidStatus")
	ErrInvalidFilter           = newCode(ErrValidation, "InvalidFilter")
	ErrInvalidLine             = newCode(ErrValidation, "InvalidLine")
	ErrTransactionFinalized    = newCode(ErrValidation, "TransactionFinalized")
)

// Conflict errors: the only kind with automatic compensation (delete fallback).
var (
	ErrReferenced = newCode(ErrConflict, "Referenced")
)

// Not-found errors.
var (
	ErrEntityNotFound       = newCode(ErrNotFound, "EntityNotFound")
	ErrEntityAlreadyDeleted = newCode(ErrNotFound, "EntityAlreadyDeleted")
	ErrTransactionNotFound  = newCode(ErrNotFound, "TransactionNotFound")
)

// Other codes.
var (
	ErrPermissionDenied   = newCode(ErrForbidden, "PermissionDenied")
	ErrTransitionRefused  = newCode(ErrIllegalTransition, "IllegalTransition")
	ErrUnexpectedDelete   = newCode(ErrTransport, "UnexpectedDeleteError")
	ErrCompensationFailed = newCode(ErrTransport, "CompensationFailed")
	ErrBackendUnavailable = newCode(ErrTransport, "BackendUnavailable")
)

// LookupCode returns the code registered under name, or nil.
func LookupCode(name string) *Code {
	return codes[name]
}

// KindOf returns the kind of err, or ErrTransport when err matches no kind.
// A nil err has no kind.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range Kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrTransport
}

// CodeOf returns the first Code in err's chain, or nil.
func CodeOf(err error) *Code {
	var c *Code
	if errors.As(err, &c) {
		return c
	}
	return nil
}

// FieldError reports a validation problem with one named field or
// relationship.
type FieldError struct {
	Code  *Code
	Field string
	Msg   string
}

func (e *FieldError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", e.Code.Name(), e.Field)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code.Name(), e.Field, e.Msg)
}

// Unwrap returns the code.
func (e *FieldError) Unwrap() error { return e.Code }

// ValidationErrors aggregates several field errors into one error.
type ValidationErrors []error

func (v ValidationErrors) Error() string {
	switch len(v) {
	case 0:
		return "no validation errors"
	case 1:
		return v[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors: %s", len(v), v[0].Error())
	for _, e := range v[1:] {
		msg += "; " + e.Error()
	}
	return msg
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (v ValidationErrors) Unwrap() []error { return v }

// Err returns nil for an empty list, otherwise v itself.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
