// Package sdkerr defines the exhaustive error-kind taxonomy every layer of
// the SDK wraps its failures in, so callers can branch on the error's Kind
// with sdkerr.Is instead of parsing messages.
package sdkerr

import "errors"

// Kind is one of the exhaustive error kinds from the public error model.
type Kind int

const (
	KindInvalidArgument Kind = iota
	KindInternalError
	KindNetworkError
	KindPreconditionFailed
	KindOperationCanceled
	KindDecryptionFailed
	KindInvalidGroupSize
	KindNotFound
	KindAlreadyExists
	KindInvalidCredentials
	KindTooManyAttempts
	KindExpired
	KindDeviceRevoked
	KindInvalidVerification
	KindIdentityAlreadyAttached
	KindIOError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindInternalError:
		return "InternalError"
	case KindNetworkError:
		return "NetworkError"
	case KindPreconditionFailed:
		return "PreconditionFailed"
	case KindOperationCanceled:
		return "OperationCanceled"
	case KindDecryptionFailed:
		return "DecryptionFailed"
	case KindInvalidGroupSize:
		return "InvalidGroupSize"
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindInvalidCredentials:
		return "InvalidCredentials"
	case KindTooManyAttempts:
		return "TooManyAttempts"
	case KindExpired:
		return "Expired"
	case KindDeviceRevoked:
		return "DeviceRevoked"
	case KindInvalidVerification:
		return "InvalidVerification"
	case KindIdentityAlreadyAttached:
		return "IdentityAlreadyAttached"
	case KindIOError:
		return "IOError"
	default:
		return "Unknown"
	}
}

// Error is the typed error every public operation returns. Reason carries
// the precise inner cause (e.g. a verifier sub-kind) when Kind alone is too
// coarse for the caller to act on.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return e.Kind.String() + ": " + e.Message + " (" + e.Reason + ")"
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Wrapped }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: err}
}

// WrapReason wraps err with both a public Kind and a precise inner Reason,
// matching §7's "verifier errors surface as InvalidArgument with the inner
// reason preserved" propagation policy.
func WrapReason(kind Kind, reason, message string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message, Wrapped: err}
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ReasonOf returns the inner Reason carried by err, if any.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
