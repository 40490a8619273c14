// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package meta

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an Error so callers can branch on failure category
// without string matching. See spec §7.
type Kind int

const (
	// KindNotFound means a uid/tid lookup missed.
	KindNotFound Kind = iota + 1
	// KindAlreadyExists means a uid collision on create.
	KindAlreadyExists
	// KindInvalidArgument means malformed config, wrong kind for the
	// operation, or a sentinel uid/tid.
	KindInvalidArgument
	// KindStaleVersion means an incoming schema/tag version is older
	// than the locally held state.
	KindStaleVersion
	// KindCorruption means a checksum or decode failure.
	KindCorruption
	// KindResourceExhausted means an allocation or capacity failure
	// (e.g. the tables[] slot array is full).
	KindResourceExhausted
	// KindSystem means a lock or other host-level failure.
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindStaleVersion:
		return "stale_version"
	case KindCorruption:
		return "corruption"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Error is the sum type every exported meta operation returns on
// failure. It carries the legacy error-code name (§6) alongside Kind
// so hosts migrating off the original code/string can still branch on
// the name they already know.
type Error struct {
	Kind Kind
	Code string // legacy error code, e.g. "TableAlreadyExists"
	msg  string
	err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("meta: %s: %s: %v", e.Code, e.msg, e.err)
	}
	return fmt.Sprintf("meta: %s: %s", e.Code, e.msg)
}

// Unwrap lets errors.Is / errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.err }

// Format implements fmt.Formatter so that %+v on an Error prints the
// stack captured by github.com/pkg/errors at the construction site.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s", e.Error())
			if st, ok := e.err.(interface{ StackTrace() errors.StackTrace }); ok {
				fmt.Fprintf(s, "%+v", st.StackTrace())
			}
			return
		}
		fallthrough
	default:
		fmt.Fprintf(s, "%s", e.Error())
	}
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg, err: errors.New(msg)}
}

func wrapErr(kind Kind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, msg: msg, err: errors.Wrap(cause, msg)}
}

// Sentinel constructors, named after the §6 error codes.

func errTableAlreadyExists(uid uint64) *Error {
	return newErr(KindAlreadyExists, "TableAlreadyExists", fmt.Sprintf("uid %d already registered", uid))
}

func errInvalidTableId(id interface{}) *Error {
	return newErr(KindNotFound, "InvalidTableId", fmt.Sprintf("no table for id %v", id))
}

func errInvalidTableType(msg string) *Error {
	return newErr(KindInvalidArgument, "InvalidTableType", msg)
}

func errInvalidAction(msg string) *Error {
	return newErr(KindInvalidArgument, "InvalidAction", msg)
}

func errInvalidCreateMessage(msg string) *Error {
	return newErr(KindInvalidArgument, "InvalidCreateMessage", msg)
}

func errTagVersionOutOfDate(local, incoming int64) *Error {
	return newErr(KindStaleVersion, "TagVersionOutOfDate", fmt.Sprintf("local tag schema version %d, incoming %d", local, incoming))
}

func errFileCorrupted(msg string, cause error) *Error {
	return wrapErr(KindCorruption, "FileCorrupted", msg, cause)
}

func errOutOfMemory(msg string) *Error {
	return newErr(KindResourceExhausted, "OutOfMemory", msg)
}

// NewCorruptionError lets collaborating packages (meta/actionlog,
// meta/store) report a KindCorruption failure through the same Error
// type without reaching into meta's unexported constructors.
func NewCorruptionError(code, msg string) error {
	return newErr(KindCorruption, code, msg)
}
