// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

// ErrorKind classifies a wire-level error. The set is closed; peers
// must treat an unrecognized kind as KindOther.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindAlreadyExists    ErrorKind = "already_exists"
	KindInvalidInput     ErrorKind = "invalid_input"
	KindUnsupported      ErrorKind = "unsupported"
	KindTimedOut         ErrorKind = "timed_out"
	KindInterrupted      ErrorKind = "interrupted"
	KindBrokenPipe       ErrorKind = "broken_pipe"
	KindIO               ErrorKind = "io"
	KindDecode           ErrorKind = "decode"
	KindEncode           ErrorKind = "encode"
	KindAuth             ErrorKind = "auth"
	KindProtocol         ErrorKind = "protocol"
	KindOther            ErrorKind = "other"
)

// Error is the error response payload. It also implements the Go error
// interface so server handlers can return one directly and clients can
// match on it with errors.As.
type Error struct {
	Kind        ErrorKind `cbor:"kind"`
	Description string    `cbor:"description"`
}

func (e *Error) Op() ResponseOp { return OpError }

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

// NewError builds an error payload with a formatted description.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Description: fmt.Sprintf(format, args...)}
}

// ErrorFrom converts an arbitrary Go error into a wire error payload.
// Already-wire errors pass through unchanged; OS and filesystem errors
// map onto the taxonomy; anything else becomes KindIO with the error
// text as description.
func ErrorFrom(err error) *Error {
	var wireError *Error
	if errors.As(err, &wireError) {
		return wireError
	}

	return &Error{Kind: classify(err), Description: err.Error()}
}

// classify maps a Go error to its wire-level kind.
func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, fs.ErrPermission):
		return KindPermissionDenied
	case errors.Is(err, fs.ErrExist):
		return KindAlreadyExists
	case errors.Is(err, fs.ErrInvalid), errors.Is(err, syscall.EINVAL):
		return KindInvalidInput
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return KindTimedOut
	case errors.Is(err, context.Canceled), errors.Is(err, syscall.EINTR):
		return KindInterrupted
	case errors.Is(err, syscall.EPIPE):
		return KindBrokenPipe
	case errors.Is(err, syscall.ENOTSUP), errors.Is(err, syscall.EOPNOTSUPP):
		return KindUnsupported
	default:
		return KindIO
	}
}
