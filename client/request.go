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
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/ubports/async-web-client/body"
	"github.com/ubports/async-web-client/protocol"
)

// Request is an HTTP/1.1 request waiting to be sent.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   body.Source
}

// NewRequest parses target, which may be absolute or relative (in
// which case a Host header must be set before sending).
func NewRequest(method, target string) (*Request, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, &Error{Kind: InvalidURI, Value: target, Err: err}
	}
	return &Request{
		Method: method,
		URL:    u,
		Header: make(http.Header),
		Body:   body.Empty{},
	}, nil
}

// WithBody sets the body and returns the request.
func (req *Request) WithBody(b body.NonEmpty) *Request {
	req.Body = b
	return req
}

// Target is the request-target sent on the request line.
func (req *Request) Target() string {
	t := req.URL.RequestURI()
	if t == "" {
		return "/"
	}
	return t
}

// chunked reports whether the caller asked for chunked framing.
func (req *Request) chunked() bool {
	return req.Header.Get("Transfer-Encoding") != ""
}

// validate checks everything that can be checked without I/O.
func (req *Request) validate() error {
	if req.Method == "" || !httpguts.ValidHeaderFieldName(req.Method) {
		return &Error{Kind: InvalidMethod, Value: req.Method}
	}
	if req.URL == nil {
		return &Error{Kind: InvalidURI}
	}
	for k, vs := range req.Header {
		if !httpguts.ValidHeaderFieldName(k) {
			return &Error{Kind: InvalidHeaderValue, Header: k}
		}
		for _, v := range vs {
			if !httpguts.ValidHeaderFieldValue(v) {
				return &Error{Kind: InvalidHeaderValue, Header: k, Value: v}
			}
		}
	}
	if te, ok := req.Header["Transfer-Encoding"]; ok {
		if len(te) != 1 || !strings.EqualFold(strings.TrimSpace(te[0]), "chunked") {
			return &Error{Kind: UnsupportedTransferEncoding, Header: "Transfer-Encoding", Value: strings.Join(te, ", ")}
		}
	}
	return nil
}

// prepare resolves the origin and builds the head to send, opening
// the body.
func (req *Request) prepare() (Origin, *protocol.RequestHead, io.Reader, uint64, error) {
	err := req.validate()
	if err != nil {
		return Origin{}, nil, nil, 0, err
	}
	origin, err := ResolveOrigin(req.URL, req.Header)
	if err != nil {
		return Origin{}, nil, nil, 0, err
	}
	src := req.Body
	if src == nil {
		src = body.Empty{}
	}
	r, length := src.Open()
	header := req.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if header.Get("Host") == "" {
		header.Set("Host", origin.HostHeader())
	}
	if cl, ok := header["Content-Length"]; ok {
		if req.chunked() || len(cl) != 1 || cl[0] != strconv.FormatUint(length, 10) {
			return Origin{}, nil, nil, 0, &Error{Kind: InvalidHeaderValue, Header: "Content-Length", Value: strings.Join(cl, ", ")}
		}
	} else if !req.chunked() {
		header.Set("Content-Length", strconv.FormatUint(length, 10))
	}
	head := &protocol.RequestHead{
		Method: req.Method,
		Target: req.Target(),
		Header: header,
	}
	return origin, head, r, length, nil
}
