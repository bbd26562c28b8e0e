package flux

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"

	"go.starlark.net/starlark"
)

// Kind names the class of a capability failure. Kinds form a tree rooted at
// KindException so that a retry policy naming a parent kind also covers its
// children.
type Kind string

const (
	KindException     Kind = "Exception"
	KindType          Kind = "TypeError"
	KindValue         Kind = "ValueError"
	KindUnicodeDecode Kind = "UnicodeDecodeError"
	KindJSONDecode    Kind = "JSONDecodeError"
	KindStatistics    Kind = "StatisticsError"
	KindArithmetic    Kind = "ArithmeticError"
	KindZeroDivision  Kind = "ZeroDivisionError"
	KindLookup        Kind = "LookupError"
	KindIndex         Kind = "IndexError"
	KindKey           Kind = "KeyError"
	KindOS            Kind = "OSError"
	KindFileNotFound  Kind = "FileNotFoundError"
	KindFileExists    Kind = "FileExistsError"
	KindPermission    Kind = "PermissionError"
	KindIsADirectory  Kind = "IsADirectoryError"
	KindTimeout       Kind = "TimeoutError"
	KindConnection    Kind = "ConnectionError"
	KindHTTP          Kind = "HTTPError"
	KindRuntime       Kind = "RuntimeError"
	KindEOF           Kind = "EOFError"
)

var kindParents = map[Kind]Kind{
	KindType:          KindException,
	KindValue:         KindException,
	KindUnicodeDecode: KindValue,
	KindJSONDecode:    KindValue,
	KindStatistics:    KindValue,
	KindArithmetic:    KindException,
	KindZeroDivision:  KindArithmetic,
	KindLookup:        KindException,
	KindIndex:         KindLookup,
	KindKey:           KindLookup,
	KindOS:            KindException,
	KindFileNotFound:  KindOS,
	KindFileExists:    KindOS,
	KindPermission:    KindOS,
	KindIsADirectory:  KindOS,
	KindTimeout:       KindOS,
	KindConnection:    KindOS,
	KindHTTP:          KindOS,
	KindRuntime:       KindException,
	KindEOF:           KindException,
}

// Parent returns the kind one level up, or "" for the root and for kinds
// that were never declared.
func (k Kind) Parent() Kind {
	return kindParents[k]
}

// Matches reports whether k is target or descends from it. Undeclared kinds
// (created by raise_error) hang directly off KindException.
func (k Kind) Matches(target Kind) bool {
	if target == KindException {
		return true
	}
	for cur := k; cur != ""; cur = cur.Parent() {
		if cur == target {
			return true
		}
	}
	return false
}

// Known reports whether k is one of the declared kinds.
func (k Kind) Known() bool {
	if k == KindException {
		return true
	}
	_, ok := kindParents[k]
	return ok
}

// Error is the failure type raised by capabilities.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Err == nil {
		return string(e.Kind)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// hostError tags an error raised by the host runtime with kind, leaving
// errors that already carry a kind alone.
func hostError(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// osError tags an I/O failure with the kind matching its cause. The
// underlying error stays reachable through errors.Is/As.
func osError(err error) error {
	if err == nil {
		return nil
	}
	var fluxErr *Error
	if errors.As(err, &fluxErr) {
		return err
	}
	return &Error{Kind: KindOf(err), Message: err.Error(), Err: err}
}

// KindOf classifies err. Capability errors report their own kind; well known
// standard library failures map onto the OS kinds; host evaluation failures
// for division by zero, bad indexes and missing keys map onto the arithmetic
// and lookup kinds; anything else is a RuntimeError.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fluxErr *Error
	if errors.As(err, &fluxErr) {
		return fluxErr.Kind
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return KindFileNotFound
	case errors.Is(err, fs.ErrExist):
		return KindFileExists
	case errors.Is(err, fs.ErrPermission):
		return KindPermission
	case errors.Is(err, syscall.EISDIR):
		return KindIsADirectory
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return KindTimeout
	}
	// syscall.Errno satisfies net.Error, so only errors raised by the
	// network stack or the HTTP client count as connection failures.
	if isNetworkError(err) {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}
	if isOSError(err) {
		return KindOS
	}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalKind(evalErr.Msg)
	}
	return KindRuntime
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	var addrErr *net.AddrError
	var urlErr *url.Error
	return errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.As(err, &addrErr) || errors.As(err, &urlErr)
}

func isOSError(err error) bool {
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	var sysErr *os.SyscallError
	var errno syscall.Errno
	return errors.As(err, &pathErr) || errors.As(err, &linkErr) || errors.As(err, &sysErr) || errors.As(err, &errno)
}

// evalKind maps the message of a failure raised by the interpreter itself
// onto a kind. The interpreter reports these as plain messages.
func evalKind(msg string) Kind {
	switch {
	case strings.HasSuffix(msg, "division by zero"), strings.HasSuffix(msg, "modulo by zero"):
		return KindZeroDivision
	case strings.Contains(msg, "index") && strings.Contains(msg, "out of range"):
		return KindIndex
	case strings.HasPrefix(msg, "key ") && strings.Contains(msg, " not in "):
		return KindKey
	}
	return KindRuntime
}
