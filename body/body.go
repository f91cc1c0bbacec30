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

// Package body turns values into request bodies: a stream paired with
// the exact number of bytes it will produce.
package body

import (
	"bytes"
	"io"
	"strings"
)

// Source is anything that can be sent as a request body. The length
// returned by Open is a commitment: it becomes the Content-Length and
// the stream must produce exactly that many bytes.
type Source interface {
	Open() (io.Reader, uint64)
}

// NonEmpty marks sources that carry bytes, as opposed to Empty.
type NonEmpty interface {
	Source
	nonEmpty()
}

// Empty is the body of a request without one.
type Empty struct{}

func (Empty) Open() (io.Reader, uint64) {
	return eofReader{}, 0
}

// Bytes borrows a byte slice; the caller must not modify it until
// the request has been sent.
type Bytes []byte

func (b Bytes) Open() (io.Reader, uint64) {
	return bytes.NewReader(b), uint64(len(b))
}

func (Bytes) nonEmpty() {}

// Buffer takes ownership of a bytes.Buffer and drains it.
type Buffer struct {
	B *bytes.Buffer
}

func (b Buffer) Open() (io.Reader, uint64) {
	if b.B == nil {
		return eofReader{}, 0
	}
	return b.B, uint64(b.B.Len())
}

func (Buffer) nonEmpty() {}

// String sends the bytes of a string.
type String string

func (s String) Open() (io.Reader, uint64) {
	return strings.NewReader(string(s)), uint64(len(s))
}

func (String) nonEmpty() {}

// Stream pairs a caller supplied reader with the exact length it will
// produce. If R is an io.Closer it is closed when the request is
// cancelled or closed while blocked reading it.
type Stream struct {
	R   io.Reader
	Len uint64
}

func (s Stream) Open() (io.Reader, uint64) {
	if s.R == nil {
		return eofReader{}, s.Len
	}
	return s.R, s.Len
}

func (Stream) nonEmpty() {}

// Optional is a source that may be absent, in which case it behaves
// as Empty.
type Optional[T NonEmpty] struct {
	value T
	valid bool
}

// Some returns a present Optional.
func Some[T NonEmpty](v T) Optional[T] {
	return Optional[T]{value: v, valid: true}
}

// None returns an absent Optional.
func None[T NonEmpty]() Optional[T] {
	return Optional[T]{}
}

// Get returns the wrapped source and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.valid
}

func (o Optional[T]) Open() (io.Reader, uint64) {
	if !o.valid {
		return eofReader{}, 0
	}
	return o.value.Open()
}

func (Optional[T]) nonEmpty() {}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
