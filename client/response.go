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
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"unicode/utf8"

	"go.uber.org/multierr"

	"github.com/ubports/async-web-client/protocol"
	"github.com/ubports/async-web-client/transport"
)

// NoLimit lifts the size cap of the accumulating body helpers.
const NoLimit = -1

// Response is a received response head plus its unread body.
type Response struct {
	StatusCode int
	Reason     string
	Proto      string
	ProtoMajor int
	ProtoMinor int
	Header     http.Header
	Body       *ResponseBody

	head *protocol.ResponseHead
}

func newResponse(head *protocol.ResponseHead, b *ResponseBody) *Response {
	return &Response{
		StatusCode: head.StatusCode,
		Reason:     head.Reason,
		Proto:      head.Proto,
		ProtoMajor: head.ProtoMajor,
		ProtoMinor: head.ProtoMinor,
		Header:     head.Header,
		Body:       b,
		head:       head,
	}
}

// Head returns the response head as received.
func (resp *Response) Head() *protocol.ResponseHead {
	return resp.head
}

// Status returns e.g. "200 OK".
func (resp *Response) Status() string {
	return resp.head.Status()
}

// IsRedirect reports 3xx responses other than 304.
func (resp *Response) IsRedirect() bool {
	return resp.StatusCode >= 300 && resp.StatusCode < 400 && resp.StatusCode != http.StatusNotModified
}

// ResponseBody streams a framed body off the transport it owns. Reads
// never go past the end of the message. Once a read fails every
// further operation fails the same way.
type ResponseBody struct {
	tr  *transport.Transport
	dec *protocol.BodyDecoder
	err error
}

func newResponseBody(tr *transport.Transport, dec *protocol.BodyDecoder) *ResponseBody {
	return &ResponseBody{tr: tr, dec: dec}
}

func (b *ResponseBody) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	if b.tr == nil {
		return 0, ErrBodyClosed
	}
	n, err := b.dec.Read(p)
	if err != nil && err != io.EOF {
		b.err = ioError(nil, err)
		if err == protocol.ErrMalformedChunk {
			b.err = &Error{Kind: InvalidData, Err: err}
		}
		return n, b.err
	}
	return n, err
}

// Framing returns how the end of the body is found.
func (b *ResponseBody) Framing() protocol.Framing {
	return b.dec.Framing()
}

// Close releases the transport. Unread body bytes are discarded.
func (b *ResponseBody) Close() error {
	if b.tr == nil {
		return nil
	}
	tr := b.tr
	b.tr = nil
	return tr.Close()
}

// Bytes reads the whole body. With a limit other than NoLimit, a body
// longer than limit fails with OutOfMemory instead of being cut.
func (b *ResponseBody) Bytes(limit int64) ([]byte, error) {
	var buf bytes.Buffer
	var r io.Reader = b
	if limit >= 0 {
		r = io.LimitReader(b, limit)
	}
	_, err := buf.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	if limit >= 0 && int64(buf.Len()) == limit {
		var probe [1]byte
		n, err := io.ReadFull(b, probe[:])
		if n > 0 {
			b.err = &Error{Kind: OutOfMemory, Value: strconv.FormatInt(limit, 10)}
			return nil, b.err
		}
		if err != io.EOF {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// String is Bytes, for bodies that must be valid UTF-8.
func (b *ResponseBody) String(limit int64) (string, error) {
	data, err := b.Bytes(limit)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		b.err = &Error{Kind: InvalidData, Value: "body is not valid UTF-8"}
		return "", b.err
	}
	return string(data), nil
}

// JSON decodes the whole body into v.
func (b *ResponseBody) JSON(limit int64, v interface{}) error {
	data, err := b.Bytes(limit)
	if err != nil {
		return err
	}
	err = json.Unmarshal(data, v)
	if err != nil {
		b.err = &Error{Kind: InvalidData, Err: err}
		return b.err
	}
	return nil
}

// Reclaim hands back the transport once the body has been read to its
// framed end; the transport is then positioned at the first byte after
// the message. Bodies that end at connection close cannot be
// reclaimed.
func (b *ResponseBody) Reclaim() (*transport.Transport, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.tr == nil {
		return nil, ErrBodyClosed
	}
	if b.dec.Framing() == protocol.UntilClose || !b.dec.Done() {
		return nil, ErrNotReclaimable
	}
	tr := b.tr
	b.tr = nil
	return tr, nil
}

// Discard reads and drops the rest of the body, then closes it.
func (b *ResponseBody) Discard() error {
	_, err := io.Copy(io.Discard, b)
	return multierr.Append(err, b.Close())
}
