package objstore

import (
	"errors"
	"fmt"
)

// Code classifies a storage error. There are two taxa: CodeInvalidArgument
// covers caller mistakes and is never worth retrying, everything else
// describes the storage backend or the local machine. CodeTransient is the
// only class callers may retry; the store itself never retries.
type Code int

const (
	CodeUnknown Code = iota
	CodeInvalidArgument
	CodeNotFound
	CodeNotAuthorized
	CodeBucketMissing
	CodeTransient
	CodeLocalIO
)

func (c Code) String() string {
	switch c {
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeNotFound:
		return "NotFound"
	case CodeNotAuthorized:
		return "NotAuthorized"
	case CodeBucketMissing:
		return "BucketMissing"
	case CodeTransient:
		return "Transient"
	case CodeLocalIO:
		return "LocalIO"
	default:
		return "Unknown"
	}
}

// Error is the tagged error type returned by every Store implementation and
// by the artifact generators. The cause, if any, is preserved for
// errors.Is/errors.As chains.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cause keeps pkg/errors.Cause chains walking through tagged errors.
func (e *Error) Cause() error {
	return e.Err
}

// Errorf builds a new tagged error with no cause.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// WrapErr tags an underlying error. Returns nil if err is nil.
func WrapErr(code Code, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: msg, Err: err}
}

// CodeOf extracts the Code from anywhere in err's chain. Untagged errors
// report CodeUnknown.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}

func IsInvalidArgument(err error) bool { return CodeOf(err) == CodeInvalidArgument }
func IsNotFound(err error) bool        { return CodeOf(err) == CodeNotFound }
func IsTransient(err error) bool       { return CodeOf(err) == CodeTransient }
