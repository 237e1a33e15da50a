package rrd

import "fmt"

// Kind identifies one of the error taxonomy entries from the spec. It is
// not a Go type per kind; callers distinguish errors with errors.As and
// (*Error).Kind, or with the Is* helpers below.
type Kind string

const (
	KindDefinitionError    Kind = "DefinitionError"
	KindInvalidFormat      Kind = "InvalidFormat"
	KindUnsupportedVersion Kind = "UnsupportedVersion"
	KindStorageError       Kind = "StorageError"
	KindTimeNonMonotonic   Kind = "TimeNonMonotonic"
	KindUpdateError        Kind = "UpdateError"
	KindUnparseable        Kind = "Unparseable"
	KindNoMatchingArchive  Kind = "NoMatchingArchive"
	KindDatabaseClosed     Kind = "DatabaseClosed"
	KindNotWritable        Kind = "NotWritable"
	KindXmlError           Kind = "XmlError"
	KindTimeSpecError      Kind = "TimeSpecError"

	// KindWrongDataSourceCount is named in spec.md §4.3 alongside the
	// taxonomy of §7; kept as its own kind rather than folded into
	// UpdateError so callers can branch on it precisely.
	KindWrongDataSourceCount Kind = "WrongDataSourceCount"
)

// Error is the concrete error type returned by every public operation in
// this package. Kind lets a caller branch on the taxonomy without string
// matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rrd: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("rrd: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrapErr(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// NewXmlError constructs a KindXmlError, for use by xmldump and other
// callers outside this package that need to report malformed XML without
// importing the internal newErr helper.
func NewXmlError(format string, args ...interface{}) *Error {
	return newErr(KindXmlError, format, args...)
}

// WrapXmlError wraps err as a KindXmlError.
func WrapXmlError(err error, format string, args ...interface{}) *Error {
	return wrapErr(KindXmlError, err, format, args...)
}

// NewTimeSpecError constructs a KindTimeSpecError, for use by the
// timespec package without importing this package's unexported helpers.
func NewTimeSpecError(format string, args ...interface{}) *Error {
	return newErr(KindTimeSpecError, format, args...)
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if asErr, ok := err.(*Error); ok {
			e = asErr
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
