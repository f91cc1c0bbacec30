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

// Package client sends HTTP/1.1 requests, each over its own fresh
// plaintext or TLS connection, and hands back streaming responses.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync/atomic"

	"github.com/ubports/async-web-client/logger"
	"github.com/ubports/async-web-client/transport"
)

// DialFunc establishes a transport; a nil tlsConfig means plaintext.
type DialFunc func(ctx context.Context, tlsConfig *tls.Config, host string, port uint16) (*transport.Transport, error)

// Client holds what requests share. The zero value is ready to use.
// Connections are never pooled: every request dials anew.
type Client struct {
	// TLSConfig defaults to transport.DefaultTLSConfig().
	TLSConfig *tls.Config
	// Log defaults to a logger that drops everything.
	Log logger.Logger
	// Dial defaults to transport.Connect.
	Dial DialFunc

	lastId uint64
}

// DefaultClient is used by the package level helpers.
var DefaultClient = &Client{}

func (c *Client) log() logger.Logger {
	if c.Log == nil {
		return logger.NewNopLogger()
	}
	return c.Log
}

func (c *Client) connect(ctx context.Context, origin Origin) (*transport.Transport, error) {
	var tlsConfig *tls.Config
	if origin.Encrypted {
		tlsConfig = c.TLSConfig
		if tlsConfig == nil {
			tlsConfig = transport.DefaultTLSConfig()
		}
	}
	dial := c.Dial
	if dial == nil {
		dial = transport.Connect
	}
	return dial(ctx, tlsConfig, origin.Host, origin.Port)
}

// Send prepares req for sending without doing any I/O. The caller
// drives the exchange with Step or Wait and must Close the
// RequestSend if it gives up before it finishes.
func (c *Client) Send(req *Request) *RequestSend {
	id := atomic.AddUint64(&c.lastId, 1)
	return newRequestSend(c, req, logger.WithPrefix(c.log(), fmt.Sprintf("req %d: ", id)))
}

// Do sends req and waits for the response head. A 3xx response is
// returned together with a Redirect error carrying its Location; it
// is never followed.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	rs := c.Send(req)
	resp, err := rs.Wait(ctx)
	if err != nil {
		c.log().Debugf("%s %s: %v", req.Method, req.URL, err)
		return nil, err
	}
	c.log().Debugf("%s %s: %s", req.Method, req.URL, resp.Status())
	if resp.IsRedirect() {
		return resp, &Error{Kind: Redirect, Header: "Location", Value: resp.Header.Get("Location")}
	}
	return resp, nil
}

// Do sends req with DefaultClient.
func Do(ctx context.Context, req *Request) (*Response, error) {
	return DefaultClient.Do(ctx, req)
}
