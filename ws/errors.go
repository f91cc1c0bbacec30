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

package ws

import (
	"fmt"

	"github.com/ubports/async-web-client/protocol"
)

// ErrorKind identifies what went wrong; errors.Is(err, ws.Closed)
// and the like work on any error from this package.
type ErrorKind uint8

const (
	InvalidUpgradeRequest ErrorKind = iota
	InvalidUpgradeResponse
	InvalidURI
	UpgradeFailed
	Protocol
	IO
	Closed
	unknownKind
)

func (k ErrorKind) String() string {
	if k >= unknownKind {
		return fmt.Sprintf("??? (%d)", k)
	}
	return [unknownKind]string{
		"invalid upgrade request",
		"invalid upgrade response",
		"invalid uri",
		"upgrade request failed",
		"protocol error",
		"io error",
		"connection closed",
	}[k]
}

func (k ErrorKind) Error() string {
	return k.String()
}

// Error is returned by handshakes and connections.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

// ErrClosed is returned by operations on a connection closed locally.
var ErrClosed error = &Error{Kind: Closed}

// DiagnosticBodySize caps the body kept in an UpgradeResponseError.
const DiagnosticBodySize = 16 * 1024

// UpgradeResponseError is returned when the server does not accept the
// upgrade. It keeps the response head and the start of the body.
type UpgradeResponseError struct {
	Reason string
	Head   *protocol.ResponseHead
	Body   []byte
}

func (e *UpgradeResponseError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", InvalidUpgradeResponse, e.Reason, e.Head.Status())
}

func (e *UpgradeResponseError) Is(target error) bool {
	return target == InvalidUpgradeResponse
}
