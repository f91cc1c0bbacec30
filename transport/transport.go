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

// Package transport unifies plaintext and TLS encrypted connections
// behind one buffered duplex byte stream.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/idna"
)

// Kind tells the two physical forms of a Transport apart.
type Kind uint8

const (
	Plain Kind = iota
	Encrypted
)

func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case Encrypted:
		return "encrypted"
	}
	return fmt.Sprintf("??? (%d)", k)
}

// BufferSize is the size of the read and write buffers of a Transport.
const BufferSize = 16 * 1024

// Transport is a duplex byte stream over exactly one connection. Reads
// and writes are buffered; data written is only guaranteed to reach the
// connection after Flush.
//
// A Transport has a single owner at any time; it is not safe for
// concurrent use except for Interrupt and Close.
type Transport struct {
	conn net.Conn
	kind Kind
	br   *bufio.Reader
	bw   *bufio.Writer
}

// New wraps an established connection.
func New(conn net.Conn, kind Kind) *Transport {
	return &Transport{
		conn: conn,
		kind: kind,
		br:   bufio.NewReaderSize(conn, BufferSize),
		bw:   bufio.NewWriterSize(conn, BufferSize),
	}
}

// Kind returns whether the transport is encrypted.
func (t *Transport) Kind() Kind {
	return t.kind
}

// Conn returns the underlying connection.
func (t *Transport) Conn() net.Conn {
	return t.conn
}

// Reader returns the read buffer. Bytes buffered there belong to the
// transport: consuming through it is the same as calling Read.
func (t *Transport) Reader() *bufio.Reader {
	return t.br
}

func (t *Transport) Read(p []byte) (int, error) {
	return t.br.Read(p)
}

func (t *Transport) ReadByte() (byte, error) {
	return t.br.ReadByte()
}

func (t *Transport) Write(p []byte) (int, error) {
	return t.bw.Write(p)
}

// Flush writes any buffered data to the connection.
func (t *Transport) Flush() error {
	return t.bw.Flush()
}

// Buffered returns the number of bytes that can be read without
// touching the connection.
func (t *Transport) Buffered() int {
	return t.br.Buffered()
}

// Interrupt makes pending and future reads and writes fail
// immediately. It is safe to call from another goroutine.
func (t *Transport) Interrupt() {
	t.conn.SetDeadline(time.Unix(1, 0))
}

// Close closes the connection. Buffered writes are discarded.
func (t *Transport) Close() error {
	return t.conn.Close()
}

func (t *Transport) String() string {
	return fmt.Sprintf("%s transport to %v", t.kind, t.conn.RemoteAddr())
}

// ErrorKind classifies connection establishment failures.
type ErrorKind uint8

const (
	InvalidDNSName ErrorKind = iota
	TCPConnect
	TLSConnect
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidDNSName:
		return "invalid host name"
	case TCPConnect:
		return "tcp connect error"
	case TLSConnect:
		return "tls connect error"
	}
	return fmt.Sprintf("??? (%d)", k)
}

// Error is returned by Connect.
type Error struct {
	Kind ErrorKind
	Host string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %q", e.Kind, e.Host)
	}
	return fmt.Sprintf("%s: %q: %v", e.Kind, e.Host, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ServerName validates host and returns the name to dial and to
// present for SNI. IP literals may come bracketed; other hosts must be
// valid DNS names.
func ServerName(host string) (string, error) {
	h := host
	if strings.HasPrefix(h, "[") && strings.HasSuffix(h, "]") {
		h = h[1 : len(h)-1]
		if ip := net.ParseIP(h); ip != nil && ip.To4() == nil {
			return h, nil
		}
		return "", &Error{Kind: InvalidDNSName, Host: host}
	}
	if ip := net.ParseIP(h); ip != nil {
		return h, nil
	}
	name, err := idna.Lookup.ToASCII(h)
	if err != nil || name == "" || len(name) > 253 {
		return "", &Error{Kind: InvalidDNSName, Host: host, Err: err}
	}
	return name, nil
}

var dialer = &net.Dialer{}

// Connect resolves and dials host:port, then runs the TLS handshake
// if tlsConfig is not nil. tlsConfig is not modified; a copy carrying
// the server name is used for the handshake.
func Connect(ctx context.Context, tlsConfig *tls.Config, host string, port uint16) (*Transport, error) {
	name, err := ServerName(host)
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(name, strconv.Itoa(int(port)))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &Error{Kind: TCPConnect, Host: host, Err: err}
	}
	if tlsConfig == nil {
		return New(conn, Plain), nil
	}
	cfg := tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = name
	}
	tconn := tls.Client(conn, cfg)
	err = tconn.HandshakeContext(ctx)
	if err != nil {
		conn.Close()
		return nil, &Error{Kind: TLSConnect, Host: host, Err: err}
	}
	return New(tconn, Encrypted), nil
}

var (
	defaultTLSOnce   sync.Once
	defaultTLSConfig *tls.Config
)

// DefaultTLSConfig returns the process-wide client TLS configuration:
// the system trust anchors and TLS 1.2 or later. It is built on first
// use and must not be modified.
func DefaultTLSConfig() *tls.Config {
	defaultTLSOnce.Do(func() {
		defaultTLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			NextProtos: []string{"http/1.1"},
		}
	})
	return defaultTLSConfig
}
