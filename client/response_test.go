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
	"errors"
	"io"

	. "launchpad.net/gocheck"

	"github.com/ubports/async-web-client/protocol"
	helpers "github.com/ubports/async-web-client/testing"
	"github.com/ubports/async-web-client/transport"
)

type responseSuite struct{}

var _ = Suite(&responseSuite{})

func newBody(wire string, framing protocol.Framing, length int64) (*ResponseBody, *helpers.ScriptedConn) {
	sc := helpers.NewScriptedConn("x", []byte(wire))
	tr := transport.New(sc, transport.Plain)
	return newResponseBody(tr, protocol.NewBodyDecoder(tr.Reader(), framing, length)), sc
}

func (s *responseSuite) TestFixedLengthAnyReadSize(c *C) {
	for _, size := range []int{1, 3, 10, 4096} {
		b, _ := newBody("0123456789tail", protocol.FixedLength, 10)
		var got []byte
		buf := make([]byte, size)
		for {
			n, err := b.Read(buf)
			got = append(got, buf[:n]...)
			if err == io.EOF {
				break
			}
			c.Assert(err, IsNil)
		}
		c.Check(string(got), Equals, "0123456789")
	}
}

func (s *responseSuite) TestLimitExact(c *C) {
	b, _ := newBody("0123456789", protocol.FixedLength, 10)
	got, err := b.String(10)
	c.Assert(err, IsNil)
	c.Check(got, Equals, "0123456789")
}

func (s *responseSuite) TestLimitExceeded(c *C) {
	b, _ := newBody("0123456789X", protocol.FixedLength, 11)
	_, err := b.String(10)
	c.Check(errors.Is(err, OutOfMemory), Equals, true)
	c.Check(err.(*Error).Class(), Equals, Protocol)
	// sticky
	_, err2 := b.Bytes(NoLimit)
	c.Check(err2, Equals, err)
	_, err2 = b.Read(make([]byte, 1))
	c.Check(err2, Equals, err)
	_, err2 = b.Reclaim()
	c.Check(err2, Equals, err)
}

func (s *responseSuite) TestLimitUntilClose(c *C) {
	b, _ := newBody("01234", protocol.UntilClose, 0)
	got, err := b.Bytes(5)
	c.Assert(err, IsNil)
	c.Check(string(got), Equals, "01234")
	b, _ = newBody("012345", protocol.UntilClose, 0)
	_, err = b.Bytes(5)
	c.Check(errors.Is(err, OutOfMemory), Equals, true)
}

func (s *responseSuite) TestZeroLimit(c *C) {
	b, _ := newBody("", protocol.NoBody, 0)
	got, err := b.Bytes(0)
	c.Assert(err, IsNil)
	c.Check(got, HasLen, 0)
}

func (s *responseSuite) TestInvalidUTF8(c *C) {
	b, _ := newBody("\xff\xfe", protocol.FixedLength, 2)
	_, err := b.String(NoLimit)
	c.Check(errors.Is(err, InvalidData), Equals, true)
}

func (s *responseSuite) TestJSON(c *C) {
	b, _ := newBody(`{"a": 1, "b": ["x"]}`, protocol.UntilClose, 0)
	var v struct {
		A int
		B []string
	}
	c.Assert(b.JSON(NoLimit, &v), IsNil)
	c.Check(v.A, Equals, 1)
	c.Check(v.B, DeepEquals, []string{"x"})

	b, _ = newBody(`{"a": `, protocol.UntilClose, 0)
	err := b.JSON(NoLimit, &v)
	c.Check(errors.Is(err, InvalidData), Equals, true)
}

func (s *responseSuite) TestTruncatedBody(c *C) {
	b, _ := newBody("0123", protocol.FixedLength, 10)
	_, err := b.Bytes(NoLimit)
	c.Check(errors.Is(err, UnexpectedEOF), Equals, true)
}

func (s *responseSuite) TestMalformedChunk(c *C) {
	b, _ := newBody("zz\r\n", protocol.Chunked, 0)
	_, err := b.Bytes(NoLimit)
	c.Check(errors.Is(err, InvalidData), Equals, true)
}

func (s *responseSuite) TestReclaimIsByteExact(c *C) {
	wire := "5\r\nhello\r\n0\r\nX-Trailer: 1\r\n\r\nNEXT MESSAGE"
	b, _ := newBody(wire, protocol.Chunked, 0)
	_, err := b.Reclaim()
	c.Check(err, Equals, ErrNotReclaimable)
	got, err := b.String(NoLimit)
	c.Assert(err, IsNil)
	c.Check(got, Equals, "hello")
	tr, err := b.Reclaim()
	c.Assert(err, IsNil)
	rest, err := io.ReadAll(tr)
	c.Assert(err, IsNil)
	c.Check(string(rest), Equals, "NEXT MESSAGE")
	// the body gave its transport away
	_, err = b.Read(make([]byte, 1))
	c.Check(err, Equals, ErrBodyClosed)
	c.Check(b.Close(), IsNil)
}

func (s *responseSuite) TestReclaimNoBody(c *C) {
	b, sc := newBody("ws frames", protocol.NoBody, 0)
	tr, err := b.Reclaim()
	c.Assert(err, IsNil)
	c.Check(sc.Closed(), Equals, false)
	rest, _ := io.ReadAll(tr)
	c.Check(string(rest), Equals, "ws frames")
}

func (s *responseSuite) TestReclaimUntilClose(c *C) {
	b, _ := newBody("all", protocol.UntilClose, 0)
	_, err := b.Bytes(NoLimit)
	c.Assert(err, IsNil)
	_, err = b.Reclaim()
	c.Check(err, Equals, ErrNotReclaimable)
}

func (s *responseSuite) TestCloseAndDiscard(c *C) {
	b, sc := newBody("0123456789", protocol.FixedLength, 10)
	c.Check(b.Discard(), IsNil)
	c.Check(sc.Closed(), Equals, true)
	c.Check(sc.Remaining(), Equals, 0)
	_, err := b.Read(make([]byte, 1))
	c.Check(err, Equals, ErrBodyClosed)
	c.Check(b.Close(), IsNil)
}
