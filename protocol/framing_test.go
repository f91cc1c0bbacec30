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

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	. "launchpad.net/gocheck"
)

type framingSuite struct{}

var _ = Suite(&framingSuite{})

func head(code int, h http.Header) *ResponseHead {
	if h == nil {
		h = http.Header{}
	}
	return &ResponseHead{StatusCode: code, Header: h}
}

func (s *framingSuite) TestResponseFraming(c *C) {
	for _, t := range []struct {
		method  string
		code    int
		h       http.Header
		framing Framing
		length  int64
	}{
		{"GET", 200, nil, UntilClose, 0},
		{"HEAD", 200, http.Header{"Content-Length": {"10"}}, NoBody, 0},
		{"GET", 204, nil, NoBody, 0},
		{"GET", 304, http.Header{"Content-Length": {"10"}}, NoBody, 0},
		{"GET", 101, nil, NoBody, 0},
		{"GET", 200, http.Header{"Content-Length": {"10"}}, FixedLength, 10},
		{"GET", 200, http.Header{"Content-Length": {"0"}}, NoBody, 0},
		{"GET", 200, http.Header{"Content-Length": {"7", "7"}}, FixedLength, 7},
		{"GET", 200, http.Header{"Content-Length": {"7, 7"}}, FixedLength, 7},
		{"GET", 200, http.Header{"Transfer-Encoding": {"Chunked"}}, Chunked, 0},
		{"GET", 200, http.Header{"Transfer-Encoding": {"chunked"}, "Content-Length": {"3"}}, Chunked, 0},
	} {
		framing, length, err := ResponseFraming(t.method, head(t.code, t.h))
		c.Assert(err, IsNil)
		c.Check(framing, Equals, t.framing, Commentf("%v %v", t.code, t.h))
		c.Check(length, Equals, t.length)
	}
}

func (s *framingSuite) TestResponseFramingUnsupportedTE(c *C) {
	for _, te := range [][]string{{"gzip"}, {"gzip, chunked"}, {"chunked", "identity"}, {""}} {
		_, _, err := ResponseFraming("GET", head(200, http.Header{"Transfer-Encoding": te}))
		c.Check(err, FitsTypeOf, &UnsupportedTransferEncodingError{}, Commentf("%q", te))
	}
}

func (s *framingSuite) TestResponseFramingBadContentLength(c *C) {
	for _, cl := range [][]string{{"-1"}, {"+5"}, {"abc"}, {"1", "2"}, {"3, 4"}, {""}, {"99999999999999999999"}} {
		_, _, err := ResponseFraming("GET", head(200, http.Header{"Content-Length": cl}))
		c.Check(err, FitsTypeOf, &InvalidContentLengthError{}, Commentf("%q", cl))
	}
}

// readInSteps reads everything from r using reads of at most step bytes.
func readInSteps(r io.Reader, step int) (string, error) {
	var out bytes.Buffer
	buf := make([]byte, step)
	for {
		n, err := r.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			return out.String(), nil
		}
		if err != nil {
			return out.String(), err
		}
	}
}

func (s *framingSuite) TestFixedLength(c *C) {
	for _, step := range []int{1, 2, 3, 7, 100} {
		br := reader("0123456789NEXT")
		d := NewBodyDecoder(br, FixedLength, 10)
		got, err := readInSteps(d, step)
		c.Assert(err, IsNil)
		c.Check(got, Equals, "0123456789")
		c.Check(d.Done(), Equals, true)
		rest, _ := io.ReadAll(br)
		c.Check(string(rest), Equals, "NEXT")
	}
}

func (s *framingSuite) TestFixedLengthShort(c *C) {
	d := NewBodyDecoder(reader("0123"), FixedLength, 10)
	got, err := readInSteps(d, 3)
	c.Check(got, Equals, "0123")
	c.Check(err, Equals, io.ErrUnexpectedEOF)
	c.Check(d.Done(), Equals, false)
	// sticky
	_, err = d.Read(make([]byte, 1))
	c.Check(err, Equals, io.ErrUnexpectedEOF)
}

func (s *framingSuite) TestChunked(c *C) {
	wire := "4\r\nWiki\r\n5;ext=1\r\npedia\r\nE\r\n in\r\n\r\nchunks.\r\n0\r\nTrailer: x\r\n\r\nNEXT"
	for _, step := range []int{1, 2, 5, 64} {
		br := reader(wire)
		d := NewBodyDecoder(br, Chunked, 0)
		got, err := readInSteps(d, step)
		c.Assert(err, IsNil)
		c.Check(got, Equals, "Wikipedia in\r\n\r\nchunks.")
		c.Check(d.Done(), Equals, true)
		rest, _ := io.ReadAll(br)
		c.Check(string(rest), Equals, "NEXT")
	}
}

func (s *framingSuite) TestChunkedErrors(c *C) {
	for _, t := range []struct {
		wire string
		err  error
	}{
		{"zz\r\nabc\r\n", ErrMalformedChunk},
		{"\r\n", ErrMalformedChunk},
		{"3\r\nabcXX0\r\n\r\n", ErrMalformedChunk},
		{"3\r\nab", io.ErrUnexpectedEOF},
		{"3\r\nabc\r\n", io.ErrUnexpectedEOF},
		{"0\r\nTrailer: x\r\n", io.ErrUnexpectedEOF},
		{strings.Repeat("0", maxChunkLine+1) + "\r\n", ErrMalformedChunk},
	} {
		d := NewBodyDecoder(reader(t.wire), Chunked, 0)
		_, err := readInSteps(d, 16)
		c.Check(err, Equals, t.err, Commentf("%q", t.wire))
	}
}

func (s *framingSuite) TestUntilClose(c *C) {
	d := NewBodyDecoder(reader("all of it"), UntilClose, 0)
	c.Check(d.Done(), Equals, false)
	got, err := readInSteps(d, 4)
	c.Assert(err, IsNil)
	c.Check(got, Equals, "all of it")
	c.Check(d.Done(), Equals, true)
}

func (s *framingSuite) TestNoBody(c *C) {
	br := reader("NEXT")
	d := NewBodyDecoder(br, NoBody, 0)
	c.Check(d.Done(), Equals, true)
	n, err := d.Read(make([]byte, 4))
	c.Check(n, Equals, 0)
	c.Check(err, Equals, io.EOF)
	rest, _ := io.ReadAll(br)
	c.Check(string(rest), Equals, "NEXT")
}

func (s *framingSuite) TestFixedEncoder(c *C) {
	buf := &bytes.Buffer{}
	e := NewBodyEncoder(buf, 5, false)
	_, err := e.Write([]byte("abc"))
	c.Assert(err, IsNil)
	c.Check(e.Close(), Equals, ErrShortBody)
	_, err = e.Write([]byte("def"))
	c.Check(err, Equals, ErrBodyOverrun)
	_, err = e.Write([]byte("de"))
	c.Assert(err, IsNil)
	c.Check(e.Close(), IsNil)
	c.Check(buf.String(), Equals, "abcde")
}

func (s *framingSuite) TestChunkedEncoderRoundTrip(c *C) {
	buf := &bytes.Buffer{}
	e := NewBodyEncoder(buf, 20, true)
	for _, p := range []string{"0123456789", "", "abcdefghij"} {
		_, err := e.Write([]byte(p))
		c.Assert(err, IsNil)
	}
	c.Assert(e.Close(), IsNil)
	c.Check(buf.String(), Equals, "a\r\n0123456789\r\na\r\nabcdefghij\r\n0\r\n\r\n")
	d := NewBodyDecoder(reader(buf.String()), Chunked, 0)
	got, err := readInSteps(d, 3)
	c.Assert(err, IsNil)
	c.Check(got, Equals, "0123456789abcdefghij")
}
