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

package protocol

// Body framing, both directions.

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Framing is how the end of a message body is found.
type Framing uint8

const (
	NoBody Framing = iota
	FixedLength
	Chunked
	UntilClose
)

func (f Framing) String() string {
	switch f {
	case NoBody:
		return "no body"
	case FixedLength:
		return "fixed length"
	case Chunked:
		return "chunked"
	case UntilClose:
		return "until close"
	}
	return fmt.Sprintf("??? (%d)", f)
}

// UnsupportedTransferEncodingError is returned for any
// Transfer-Encoding other than plain chunked.
type UnsupportedTransferEncodingError struct {
	Value string
}

func (e *UnsupportedTransferEncodingError) Error() string {
	return fmt.Sprintf("unsupported transfer encoding: %q", e.Value)
}

// InvalidContentLengthError is returned for unparseable or conflicting
// Content-Length values.
type InvalidContentLengthError struct {
	Value string
}

func (e *InvalidContentLengthError) Error() string {
	return fmt.Sprintf("invalid content length: %q", e.Value)
}

var (
	ErrMalformedChunk = errors.New("malformed chunk")
	ErrBodyOverrun    = errors.New("body longer than declared")
	ErrShortBody      = errors.New("body shorter than declared")
)

// ResponseFraming picks the body framing of a response to a request
// with the given method. The length is only meaningful for
// FixedLength.
func ResponseFraming(method string, head *ResponseHead) (Framing, int64, error) {
	code := head.StatusCode
	if method == http.MethodHead || (code >= 100 && code < 200) || code == http.StatusNoContent || code == http.StatusNotModified {
		return NoBody, 0, nil
	}
	if te, ok := head.Header["Transfer-Encoding"]; ok {
		joined := strings.Join(te, ", ")
		if !strings.EqualFold(strings.TrimSpace(joined), "chunked") {
			return 0, 0, &UnsupportedTransferEncodingError{joined}
		}
		return Chunked, 0, nil
	}
	if cl, ok := head.Header["Content-Length"]; ok {
		n, err := parseContentLength(cl)
		if err != nil {
			return 0, 0, err
		}
		if n == 0 {
			return NoBody, 0, nil
		}
		return FixedLength, n, nil
	}
	return UntilClose, 0, nil
}

func parseContentLength(values []string) (int64, error) {
	var n int64 = -1
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s == "" || strings.TrimLeft(s, "0123456789") != "" {
				return 0, &InvalidContentLengthError{v}
			}
			m, err := strconv.ParseInt(s, 10, 64)
			if err != nil || (n >= 0 && m != n) {
				return 0, &InvalidContentLengthError{v}
			}
			n = m
		}
	}
	if n < 0 {
		return 0, &InvalidContentLengthError{""}
	}
	return n, nil
}

const maxChunkLine = 4096

// BodyDecoder reads a framed body from br and stops exactly at the end
// of it, leaving br positioned at the first byte past the message.
// Errors are sticky.
type BodyDecoder struct {
	br      *bufio.Reader
	framing Framing
	// bytes left in the body (FixedLength) or the current chunk
	// (Chunked, -1 when a size line is due)
	remain int64
	done   bool
	err    error
}

// NewBodyDecoder returns a decoder for a body with the given framing.
func NewBodyDecoder(br *bufio.Reader, framing Framing, length int64) *BodyDecoder {
	d := &BodyDecoder{br: br, framing: framing, remain: length}
	switch framing {
	case NoBody:
		d.done = true
	case Chunked:
		d.remain = -1
	}
	return d
}

// Framing returns the framing being decoded.
func (d *BodyDecoder) Framing() Framing {
	return d.framing
}

// Done reports whether the whole body has been consumed.
func (d *BodyDecoder) Done() bool {
	return d.done
}

func (d *BodyDecoder) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	if d.done {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	var n int
	var err error
	switch d.framing {
	case FixedLength:
		n, err = d.readFixed(p)
	case Chunked:
		n, err = d.readChunked(p)
	default:
		n, err = d.br.Read(p)
		if err == io.EOF {
			d.done = true
		}
	}
	if err != nil && err != io.EOF {
		d.err = err
	}
	return n, err
}

func (d *BodyDecoder) readFixed(p []byte) (int, error) {
	if int64(len(p)) > d.remain {
		p = p[:d.remain]
	}
	n, err := d.br.Read(p)
	d.remain -= int64(n)
	if d.remain == 0 {
		d.done = true
		return n, nil
	}
	if err == io.EOF {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

func (d *BodyDecoder) readChunked(p []byte) (int, error) {
	if d.remain < 0 {
		size, err := d.readChunkSize()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			err = d.readTrailers()
			if err != nil {
				return 0, err
			}
			d.done = true
			return 0, io.EOF
		}
		d.remain = size
	}
	if int64(len(p)) > d.remain {
		p = p[:d.remain]
	}
	n, err := d.br.Read(p)
	d.remain -= int64(n)
	if err == io.EOF {
		return n, io.ErrUnexpectedEOF
	}
	if err != nil {
		return n, err
	}
	if d.remain == 0 {
		err = d.expectCRLF()
		if err != nil {
			return n, err
		}
		d.remain = -1
	}
	return n, nil
}

func (d *BodyDecoder) readChunkSize() (int64, error) {
	budget := maxChunkLine
	line, err := readLine(d.br, &budget)
	if err != nil {
		return 0, chunkErr(err)
	}
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimRight(line, " \t")
	if line == "" {
		return 0, ErrMalformedChunk
	}
	size, err := strconv.ParseUint(line, 16, 63)
	if err != nil {
		return 0, ErrMalformedChunk
	}
	return int64(size), nil
}

func (d *BodyDecoder) expectCRLF() error {
	var crlf [2]byte
	_, err := io.ReadFull(d.br, crlf[:])
	if err != nil {
		return chunkErr(err)
	}
	if crlf != [2]byte{'\r', '\n'} {
		return ErrMalformedChunk
	}
	return nil
}

// readTrailers consumes and discards trailer fields.
func (d *BodyDecoder) readTrailers() error {
	budget := MaxHeadBytes
	for {
		line, err := readLine(d.br, &budget)
		if err != nil {
			return chunkErr(err)
		}
		if line == "" {
			return nil
		}
	}
}

func chunkErr(err error) error {
	switch err {
	case io.EOF:
		return io.ErrUnexpectedEOF
	case ErrHeadTooLarge:
		return ErrMalformedChunk
	}
	return err
}

// BodyEncoder frames an outgoing body. Close finishes the framing;
// it does not close the underlying writer.
type BodyEncoder interface {
	io.Writer
	Close() error
}

// NewBodyEncoder returns an encoder writing exactly length bytes to w,
// chunk framed if chunked is set.
func NewBodyEncoder(w io.Writer, length uint64, chunked bool) BodyEncoder {
	if chunked {
		return &chunkedEncoder{w: w, remain: length}
	}
	return &fixedEncoder{w: w, remain: length}
}

type fixedEncoder struct {
	w      io.Writer
	remain uint64
}

func (e *fixedEncoder) Write(p []byte) (int, error) {
	if uint64(len(p)) > e.remain {
		return 0, ErrBodyOverrun
	}
	n, err := e.w.Write(p)
	e.remain -= uint64(n)
	return n, err
}

func (e *fixedEncoder) Close() error {
	if e.remain != 0 {
		return ErrShortBody
	}
	return nil
}

type chunkedEncoder struct {
	w      io.Writer
	remain uint64
}

func (e *chunkedEncoder) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if uint64(len(p)) > e.remain {
		return 0, ErrBodyOverrun
	}
	_, err := fmt.Fprintf(e.w, "%x\r\n", len(p))
	if err != nil {
		return 0, err
	}
	n, err := e.w.Write(p)
	e.remain -= uint64(n)
	if err != nil {
		return n, err
	}
	_, err = io.WriteString(e.w, "\r\n")
	return n, err
}

func (e *chunkedEncoder) Close() error {
	if e.remain != 0 {
		return ErrShortBody
	}
	_, err := io.WriteString(e.w, "0\r\n\r\n")
	return err
}
