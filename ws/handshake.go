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

// Package ws upgrades an HTTP/1.1 exchange to a WebSocket connection
// and speaks the framing over the surviving transport.
package ws

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"

	"github.com/pborman/uuid"
	"golang.org/x/net/http/httpguts"

	"github.com/ubports/async-web-client/client"
	"github.com/ubports/async-web-client/logger"
)

const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// newKey returns a fresh Sec-WebSocket-Key: 16 random bytes, base64.
func newKey() string {
	return base64.StdEncoding.EncodeToString(uuid.NewRandom())
}

// AcceptKey derives the Sec-WebSocket-Accept value for key.
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// UpgradeRequest builds the handshake request for a ws://, wss://,
// http:// or https:// target.
func UpgradeRequest(target string) (*client.Request, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, &Error{Kind: InvalidURI, Err: err}
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https", "":
	default:
		return nil, &Error{Kind: InvalidURI, Err: &client.Error{Kind: client.UnexpectedScheme, Value: u.Scheme}}
	}
	req, err := client.NewRequest(http.MethodGet, u.String())
	if err != nil {
		return nil, &Error{Kind: InvalidURI, Err: err}
	}
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", newKey())
	return req, nil
}

// IsUpgradeRequest reports whether req carries the handshake headers.
func IsUpgradeRequest(req *client.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	h := req.Header
	if !httpguts.HeaderValuesContainsToken(h["Connection"], "upgrade") ||
		!httpguts.HeaderValuesContainsToken(h["Upgrade"], "websocket") ||
		h.Get("Sec-WebSocket-Version") != "13" {
		return false
	}
	key, err := base64.StdEncoding.DecodeString(h.Get("Sec-WebSocket-Key"))
	return err == nil && len(key) == 16
}

// CheckUpgradeResponse verifies resp accepts the upgrade asked by req.
// On failure the body is read (up to DiagnosticBodySize) and closed.
func CheckUpgradeResponse(req *client.Request, resp *client.Response) error {
	reason := ""
	switch {
	case resp.StatusCode != http.StatusSwitchingProtocols:
		reason = "unexpected status"
	case !httpguts.HeaderValuesContainsToken(resp.Header["Upgrade"], "websocket"):
		reason = "missing Upgrade: websocket"
	case !httpguts.HeaderValuesContainsToken(resp.Header["Connection"], "upgrade"):
		reason = "missing Connection: upgrade"
	case resp.Header.Get("Sec-WebSocket-Accept") != AcceptKey(req.Header.Get("Sec-WebSocket-Key")):
		reason = "bad Sec-WebSocket-Accept"
	default:
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, DiagnosticBodySize))
	resp.Body.Close()
	return &UpgradeResponseError{Reason: reason, Head: resp.Head(), Body: data}
}

// Connect performs the handshake for req through c and returns the
// upgraded connection. A request without the handshake headers fails
// before any I/O.
func Connect(ctx context.Context, c *client.Client, req *client.Request) (*Conn, error) {
	if !IsUpgradeRequest(req) {
		return nil, &Error{Kind: InvalidUpgradeRequest}
	}
	resp, err := c.Send(req).Wait(ctx)
	if err != nil {
		return nil, &Error{Kind: UpgradeFailed, Err: err}
	}
	err = CheckUpgradeResponse(req, resp)
	if err != nil {
		return nil, err
	}
	tr, err := resp.Body.Reclaim()
	if err != nil {
		resp.Body.Close()
		return nil, &Error{Kind: Protocol, Err: err}
	}
	log := c.Log
	if log == nil {
		log = logger.NewNopLogger()
	}
	return newConn(tr, logger.WithPrefix(log, "ws: ")), nil
}

// Dial connects to uri with client.DefaultClient.
func Dial(ctx context.Context, uri string) (*Conn, error) {
	req, err := UpgradeRequest(uri)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, client.DefaultClient, req)
}
