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
	"net/http"
	"net/http/httptest"
	"strings"

	. "launchpad.net/gocheck"

	"github.com/ubports/async-web-client/body"
	helpers "github.com/ubports/async-web-client/testing"
)

type clientSuite struct {
	srv *httptest.Server
	tls *httptest.Server
}

var _ = Suite(&clientSuite{})

func echoHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch r.URL.Path {
	case "/chunked":
		w.Header().Set("X-Method", r.Method)
		w.WriteHeader(http.StatusOK)
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "part %d;", i)
			w.(http.Flusher).Flush()
		}
		return
	case "/redirect":
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
		return
	}
	w.Header().Set("X-Method", r.Method)
	w.Header().Set("X-Host", r.Host)
	w.Header().Set("X-Content-Length", fmt.Sprint(r.ContentLength))
	w.Header().Set("X-Transfer-Encoding", strings.Join(r.TransferEncoding, ","))
	w.Write(data)
}

func (s *clientSuite) SetUpSuite(c *C) {
	s.srv = httptest.NewServer(http.HandlerFunc(echoHandler))
	s.tls = httptest.NewUnstartedServer(http.HandlerFunc(echoHandler))
	s.tls.TLS = helpers.TestTLSServerConfig
	s.tls.StartTLS()
}

func (s *clientSuite) TearDownSuite(c *C) {
	s.srv.Close()
	s.tls.Close()
}

func (s *clientSuite) TestPlainGet(c *C) {
	req, err := NewRequest("GET", s.srv.URL+"/x")
	c.Assert(err, IsNil)
	resp, err := (&Client{}).Do(context.Background(), req)
	c.Assert(err, IsNil)
	defer resp.Body.Close()
	c.Check(resp.StatusCode, Equals, 200)
	c.Check(resp.Proto, Equals, "HTTP/1.1")
	c.Check(resp.Header.Get("X-Method"), Equals, "GET")
	c.Check(resp.Header.Get("X-Host"), Equals, strings.TrimPrefix(s.srv.URL, "http://"))
	c.Check(resp.Header.Get("X-Content-Length"), Equals, "0")
}

func (s *clientSuite) TestPlainPost(c *C) {
	req, err := NewRequest("POST", s.srv.URL+"/x")
	c.Assert(err, IsNil)
	req.WithBody(body.String("the payload"))
	resp, err := (&Client{}).Do(context.Background(), req)
	c.Assert(err, IsNil)
	c.Check(resp.Header.Get("X-Content-Length"), Equals, "11")
	got, err := resp.Body.String(1024)
	c.Assert(err, IsNil)
	c.Check(got, Equals, "the payload")
	c.Check(resp.Body.Close(), IsNil)
}

func (s *clientSuite) TestChunkedBothWays(c *C) {
	req, err := NewRequest("PUT", s.srv.URL+"/chunked")
	c.Assert(err, IsNil)
	req.Header.Set("Transfer-Encoding", "chunked")
	req.WithBody(body.Bytes(strings.Repeat("z", 40000)))
	resp, err := (&Client{}).Do(context.Background(), req)
	c.Assert(err, IsNil)
	c.Check(resp.Body.Framing().String(), Equals, "chunked")
	got, err := resp.Body.String(NoLimit)
	c.Assert(err, IsNil)
	c.Check(got, Equals, "part 0;part 1;part 2;")
	resp.Body.Close()
}

func (s *clientSuite) TestTLS(c *C) {
	cli := &Client{TLSConfig: helpers.TestTLSClientConfig}
	req, err := NewRequest("POST", s.tls.URL+"/secure")
	c.Assert(err, IsNil)
	req.WithBody(body.String("secret"))
	resp, err := cli.Do(context.Background(), req)
	c.Assert(err, IsNil)
	got, err := resp.Body.String(NoLimit)
	c.Assert(err, IsNil)
	c.Check(got, Equals, "secret")
	resp.Body.Close()
}

func (s *clientSuite) TestTLSUntrusted(c *C) {
	req, err := NewRequest("GET", s.tls.URL+"/")
	c.Assert(err, IsNil)
	_, err = (&Client{}).Do(context.Background(), req)
	c.Check(errors.Is(err, Connect), Equals, true)
	c.Check(err.(*Error).Class(), Equals, ConnectClass)
}

func (s *clientSuite) TestRedirect(c *C) {
	req, err := NewRequest("GET", s.srv.URL+"/redirect")
	c.Assert(err, IsNil)
	resp, err := (&Client{}).Do(context.Background(), req)
	c.Check(errors.Is(err, Redirect), Equals, true)
	c.Assert(resp, NotNil)
	c.Check(resp.Header.Get("Location"), Equals, "/elsewhere")
	resp.Body.Close()
}

func (s *clientSuite) TestHead(c *C) {
	req, err := NewRequest("HEAD", s.srv.URL+"/x")
	c.Assert(err, IsNil)
	resp, err := (&Client{}).Do(context.Background(), req)
	c.Assert(err, IsNil)
	got, err := resp.Body.Bytes(NoLimit)
	c.Assert(err, IsNil)
	c.Check(got, HasLen, 0)
	resp.Body.Close()
}

func (s *clientSuite) TestConnectRefused(c *C) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	req, err := NewRequest("GET", url+"/")
	c.Assert(err, IsNil)
	_, err = (&Client{}).Do(context.Background(), req)
	c.Check(errors.Is(err, Connect), Equals, true)
	c.Check(IsRetryable(err), Equals, true)
}

func (s *clientSuite) TestErrorStrings(c *C) {
	c.Check((&Error{Kind: MissingHost}).Error(), Equals, "missing host")
	c.Check((&Error{Kind: UnexpectedScheme, Value: "ftp"}).Error(), Equals, `unexpected scheme: "ftp"`)
	c.Check((&Error{Kind: InvalidHeaderValue, Header: "X", Value: "a\nb"}).Error(), Equals, `invalid header value: X: "a\nb"`)
	c.Check((&Error{Kind: IO, Err: io.ErrClosedPipe}).Error(), Equals, "io error: io: read/write on closed pipe")
	c.Check(ErrorKind(99).String(), Equals, "??? (99)")
	c.Check(Class(9).String(), Equals, "??? (9)")
}

func (s *clientSuite) TestRetryable(c *C) {
	c.Check((&Error{Kind: Connect}).Retryable(), Equals, true)
	c.Check((&Error{Kind: Connect, Err: context.Canceled}).Retryable(), Equals, false)
	c.Check((&Error{Kind: IO}).Retryable(), Equals, false)
	c.Check((&Error{Kind: MissingHost}).Retryable(), Equals, false)
	c.Check(IsRetryable(errors.New("x")), Equals, false)
}
