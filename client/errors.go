/*
 Copyright 2013-2014 Canonical Ltd.

 This program is free software: you can redistribute it and/or modify it
 under the terms of the GNU General Public License version 3, as published
 by the Free Software Foundation.

 This program is distributed in the hope that it will be useful, but
 WITHOUT ANY WARRANTY; without even the implied warranties of
 MERCHANTABILITY, SATISFACTORY QUALITY, or FITNESS FOR A PARTICULAR
 PURPOSE.  See the GNU General Public License for more details.

 You should have received a copy of the GNU General Public License along
 with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrorKind identifies what went wrong. Kinds are errors themselves
// so that errors.Is(err, client.MissingHost) works.
type ErrorKind uint8

const (
	InvalidHeaderValue ErrorKind = iota
	InvalidMethod
	InvalidURI
	MissingHost
	UnexpectedScheme
	UnsupportedTransferEncoding
	InvalidContentLength
	Connect
	IO
	UnexpectedEOF
	BodyOverrun
	OutOfMemory
	InvalidData
	Redirect
	unknownKind
)

func (k ErrorKind) String() string {
	if k >= unknownKind {
		return fmt.Sprintf("??? (%d)", k)
	}
	return [unknownKind]string{
		"invalid header value",
		"invalid method",
		"invalid uri",
		"missing host",
		"unexpected scheme",
		"unsupported transfer encoding",
		"invalid content length",
		"connect error",
		"io error",
		"unexpected eof",
		"body overrun",
		"out of memory",
		"invalid data",
		"redirect",
	}[k]
}

func (k ErrorKind) Error() string {
	return k.String()
}

// Class is the coarse grouping of error kinds.
type Class uint8

const (
	// Input errors are found before any I/O.
	Input Class = iota
	// ConnectClass errors happen while establishing the transport.
	ConnectClass
	// IOClass errors happen reading or writing after connect.
	IOClass
	// Protocol errors are responses that are not what was asked for.
	Protocol
)

func (c Class) String() string {
	switch c {
	case Input:
		return "input"
	case ConnectClass:
		return "connect"
	case IOClass:
		return "io"
	case Protocol:
		return "protocol"
	}
	return fmt.Sprintf("??? (%d)", c)
}

// Class returns the class of the kind.
func (k ErrorKind) Class() Class {
	switch k {
	case InvalidHeaderValue, InvalidMethod, InvalidURI, MissingHost, UnexpectedScheme, UnsupportedTransferEncoding:
		return Input
	case Connect:
		return ConnectClass
	case IO, UnexpectedEOF, BodyOverrun:
		return IOClass
	}
	return Protocol
}

// Error is the error type returned by requests and response bodies.
// Values are never modified once returned.
type Error struct {
	Kind ErrorKind
	// Header is the offending header, if any.
	Header string
	// Value is the offending value: a header value, method, target,
	// scheme, host, or the Location of a redirect.
	Value string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	switch {
	case e.Header != "":
		msg = fmt.Sprintf("%s: %s: %q", msg, e.Header, e.Value)
	case e.Value != "":
		msg = fmt.Sprintf("%s: %q", msg, e.Value)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches an ErrorKind target against the kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

// Class returns the class of the error kind.
func (e *Error) Class() Class {
	return e.Kind.Class()
}

// Retryable reports whether a fresh attempt at the same request might
// succeed. Only failures to establish the connection qualify.
func (e *Error) Retryable() bool {
	return e.Kind.Class() == ConnectClass && !errors.Is(e.Err, context.Canceled)
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

var (
	ErrFinished = errors.New("request already finished")
	ErrBusy     = errors.New("request is being advanced")
	ErrClosed   = errors.New("request closed")
	// ErrBodyClosed is returned by reads on a closed or reclaimed body.
	ErrBodyClosed = errors.New("response body closed")
	// ErrNotReclaimable is returned by Reclaim when the transport is
	// not positioned at the end of the message.
	ErrNotReclaimable = errors.New("transport not reclaimable")
)

// ioError wraps a failed read or write. A canceled context takes
// precedence over the error it caused.
func ioError(ctx context.Context, err error) *Error {
	if ctx != nil && ctx.Err() != nil {
		return &Error{Kind: IO, Err: ctx.Err()}
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return &Error{Kind: UnexpectedEOF, Err: io.ErrUnexpectedEOF}
	}
	return &Error{Kind: IO, Err: err}
}
