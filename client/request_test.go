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

	. "launchpad.net/gocheck"

	"github.com/ubports/async-web-client/body"
)

type requestSuite struct{}

var _ = Suite(&requestSuite{})

func (s *requestSuite) TestNewRequest(c *C) {
	req, err := NewRequest("GET", "http://example.com/a/b?c=d#frag")
	c.Assert(err, IsNil)
	c.Check(req.Target(), Equals, "/a/b?c=d")
	c.Check(req.Body, Equals, body.Source(body.Empty{}))
	req, err = NewRequest("GET", "http://example.com")
	c.Assert(err, IsNil)
	c.Check(req.Target(), Equals, "/")
}

func (s *requestSuite) TestNewRequestBadURI(c *C) {
	_, err := NewRequest("GET", "http://exa mple.com/")
	c.Check(errors.Is(err, InvalidURI), Equals, true)
}

func (s *requestSuite) TestWithBody(c *C) {
	req, err := NewRequest("PUT", "http://example.com/")
	c.Assert(err, IsNil)
	c.Check(req.WithBody(body.String("x")), Equals, req)
	c.Check(req.Body, Equals, body.Source(body.String("x")))
}

func (s *requestSuite) TestValidate(c *C) {
	for _, t := range []struct {
		method, key, value string
		kind               ErrorKind
	}{
		{"GE T", "", "", InvalidMethod},
		{"", "", "", InvalidMethod},
		{"GET", "X-Bad", "a\r\nb", InvalidHeaderValue},
		{"GET", "Bad Name", "a", InvalidHeaderValue},
		{"GET", "Transfer-Encoding", "gzip", UnsupportedTransferEncoding},
	} {
		req, err := NewRequest(t.method, "http://example.com/")
		c.Assert(err, IsNil)
		if t.key != "" {
			req.Header[t.key] = []string{t.value}
		}
		err = req.validate()
		c.Check(errors.Is(err, t.kind), Equals, true, Commentf("%v", err))
		c.Check(err.(*Error).Class(), Equals, Input)
	}
}

func (s *requestSuite) TestPrepareInjects(c *C) {
	req, err := NewRequest("POST", "http://example.com:8080/x")
	c.Assert(err, IsNil)
	req.WithBody(body.Bytes("abc"))
	_, head, _, length, err := req.prepare()
	c.Assert(err, IsNil)
	c.Check(length, Equals, uint64(3))
	c.Check(head.Header.Get("Host"), Equals, "example.com:8080")
	c.Check(head.Header.Get("Content-Length"), Equals, "3")
	// the request itself is not modified
	c.Check(req.Header, HasLen, 0)
}

func (s *requestSuite) TestPrepareKeepsCallerHost(c *C) {
	req, err := NewRequest("GET", "http://example.com/x")
	c.Assert(err, IsNil)
	req.Header.Set("Host", "virtual.example.com")
	req.Header.Set("Content-Length", "0")
	_, head, _, _, err := req.prepare()
	c.Assert(err, IsNil)
	c.Check(head.Header.Get("Host"), Equals, "virtual.example.com")
	c.Check(head.Header["Content-Length"], DeepEquals, []string{"0"})
}

func (s *requestSuite) TestPrepareContentLengthMismatch(c *C) {
	req, err := NewRequest("POST", "http://example.com/x")
	c.Assert(err, IsNil)
	req.WithBody(body.String("abc"))
	req.Header.Set("Content-Length", "4")
	_, _, _, _, err = req.prepare()
	c.Check(errors.Is(err, InvalidHeaderValue), Equals, true)
	c.Check(err.(*Error).Header, Equals, "Content-Length")
}

func (s *requestSuite) TestPrepareChunked(c *C) {
	req, err := NewRequest("POST", "http://example.com/x")
	c.Assert(err, IsNil)
	req.WithBody(body.String("abc"))
	req.Header.Set("Transfer-Encoding", "chunked")
	_, head, _, _, err := req.prepare()
	c.Assert(err, IsNil)
	c.Check(head.Header.Get("Content-Length"), Equals, "")
}
