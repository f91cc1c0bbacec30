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

package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/multierr"

	"github.com/ubports/async-web-client/logger"
	"github.com/ubports/async-web-client/transport"
)

// FrameSize is the payload size at which a MessageWriter emits a
// frame before the message is complete.
const FrameSize = 16 * 1024

// MessageKind is the type of a data message.
type MessageKind uint8

const (
	Text MessageKind = iota
	Binary
)

func (k MessageKind) String() string {
	if k == Text {
		return "text"
	}
	return "binary"
}

func (k MessageKind) opCode() ws.OpCode {
	if k == Text {
		return ws.OpText
	}
	return ws.OpBinary
}

// Conn is the client end of a WebSocket connection. One goroutine may
// read messages while others send; at most one MessageWriter is
// outstanding at a time.
type Conn struct {
	tr  *transport.Transport
	log logger.Logger

	// wlock serializes frames on the wire
	wlock     sync.Mutex
	closeSent bool
	wsem      chan struct{}

	rlock sync.Mutex
	cur   *MessageReader

	errLock   sync.Mutex
	err       error
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(tr *transport.Transport, log logger.Logger) *Conn {
	return &Conn{
		tr:   tr,
		log:  log,
		wsem: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Err returns the error that broke the connection, if any. It is
// ErrClosed after Close.
func (c *Conn) Err() error {
	c.errLock.Lock()
	defer c.errLock.Unlock()
	return c.err
}

// fail records err unless an earlier error broke the connection, and
// returns the recorded one.
func (c *Conn) fail(err error) error {
	c.errLock.Lock()
	defer c.errLock.Unlock()
	if c.err == nil {
		c.err = err
	}
	return c.err
}

func (c *Conn) writeFrameLocked(f ws.Frame) error {
	f = ws.MaskFrameInPlace(f)
	err := ws.WriteFrame(c.tr, f)
	if err == nil {
		err = c.tr.Flush()
	}
	if err != nil {
		return c.fail(&Error{Kind: IO, Err: err})
	}
	return nil
}

func (c *Conn) writeFrame(f ws.Frame) error {
	c.wlock.Lock()
	defer c.wlock.Unlock()
	if err := c.Err(); err != nil {
		return err
	}
	if c.closeSent {
		return ErrClosed
	}
	return c.writeFrameLocked(f)
}

// sendClose writes a close frame unless one went out already.
func (c *Conn) sendClose(body []byte) error {
	c.wlock.Lock()
	defer c.wlock.Unlock()
	if c.closeSent {
		return nil
	}
	c.closeSent = true
	return c.writeFrameLocked(ws.NewCloseFrame(body))
}

// Send starts a message of the given kind. It blocks while another
// MessageWriter is open.
func (c *Conn) Send(ctx context.Context, kind MessageKind) (*MessageWriter, error) {
	select {
	case c.wsem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
	if err := c.Err(); err != nil {
		<-c.wsem
		return nil, err
	}
	return &MessageWriter{c: c, kind: kind, buf: make([]byte, 0, 512)}, nil
}

func (c *Conn) send(ctx context.Context, kind MessageKind, data []byte) error {
	w, err := c.Send(ctx, kind)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return multierr.Append(err, w.Close())
}

// SendText sends s as a single text message.
func (c *Conn) SendText(ctx context.Context, s string) error {
	return c.send(ctx, Text, []byte(s))
}

// SendBinary sends data as a single binary message.
func (c *Conn) SendBinary(ctx context.Context, data []byte) error {
	return c.send(ctx, Binary, data)
}

// Ping sends a ping with the given payload.
func (c *Conn) Ping(payload []byte) error {
	if len(payload) > ws.MaxControlFramePayloadSize {
		return &Error{Kind: Protocol, Err: ws.ErrProtocolControlPayloadOverflow}
	}
	return c.writeFrame(ws.NewPingFrame(append([]byte(nil), payload...)))
}

// Next waits for the next data message. The unread rest of the
// previous message is discarded. Cancelling ctx while Next waits
// breaks the connection.
func (c *Conn) Next(ctx context.Context) (*MessageReader, error) {
	c.rlock.Lock()
	defer c.rlock.Unlock()
	if c.cur != nil {
		if _, err := io.Copy(io.Discard, c.cur); err != nil {
			return nil, err
		}
		c.cur = nil
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, c.tr.Interrupt)
	h, err := c.nextHeader(false)
	if !stop() {
		err = c.fail(&Error{Kind: IO, Err: ctx.Err()})
	}
	if err != nil {
		return nil, err
	}
	m := &MessageReader{c: c, kind: Binary, remain: h.Length, fin: h.Fin}
	if h.OpCode == ws.OpText {
		m.kind = Text
		m.utf8 = wsutil.NewUTF8Reader(rawReader{m})
	}
	c.log.Debugf("%s message", m.kind)
	c.cur = m
	return m, nil
}

// nextHeader reads frame headers, answering control frames, until the
// header of a data frame arrives.
func (c *Conn) nextHeader(fragmented bool) (ws.Header, error) {
	state := ws.StateClientSide
	if fragmented {
		state = state.Set(ws.StateFragmented)
	}
	for {
		h, err := ws.ReadHeader(c.tr)
		if err != nil {
			return h, c.fail(readError(err))
		}
		if err := ws.CheckHeader(h, state); err != nil {
			return h, c.protocolError(ws.StatusProtocolError, err)
		}
		if !h.OpCode.IsControl() {
			return h, nil
		}
		if err := c.control(h); err != nil {
			return h, err
		}
	}
}

func (c *Conn) control(h ws.Header) error {
	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(c.tr, payload); err != nil {
		return c.fail(readError(err))
	}
	switch h.OpCode {
	case ws.OpPing:
		c.log.Debugf("ping (%d bytes)", len(payload))
		c.wlock.Lock()
		defer c.wlock.Unlock()
		if c.closeSent {
			return nil
		}
		return c.writeFrameLocked(ws.NewPongFrame(payload))
	case ws.OpPong:
		return nil
	}
	// close
	if len(payload) == 0 {
		c.log.Debugf("close received")
		c.sendClose(nil)
		return c.fail(&Error{Kind: Closed, Err: errors.New("closed by peer")})
	}
	code, reason := ws.ParseCloseFrameData(payload)
	if err := ws.CheckCloseFrameData(code, reason); err != nil {
		return c.protocolError(ws.StatusProtocolError, err)
	}
	c.log.Debugf("close received: %d %q", code, reason)
	c.sendClose(ws.NewCloseFrameBody(code, ""))
	return c.fail(&Error{Kind: Closed, Err: fmt.Errorf("closed by peer: %d %s", code, reason)})
}

// protocolError tells the peer why the connection is dropped and
// breaks it.
func (c *Conn) protocolError(code ws.StatusCode, err error) error {
	c.log.Debugf("protocol error: %v", err)
	c.sendClose(ws.NewCloseFrameBody(code, ""))
	return c.fail(&Error{Kind: Protocol, Err: err})
}

func readError(err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &Error{Kind: IO, Err: err}
}

// Close sends a normal close frame, if none went out yet, and closes
// the transport.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.Err() == nil {
			err = c.sendClose(ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		}
		c.fail(ErrClosed)
		close(c.done)
		err = multierr.Append(err, c.tr.Close())
	})
	return err
}

// MessageWriter writes one message, split in frames of FrameSize.
// Close sends the final frame and lets the next writer in.
type MessageWriter struct {
	c      *Conn
	kind   MessageKind
	buf    []byte
	sent   bool
	closed bool
}

var ErrWriterClosed = errors.New("message writer closed")

func (w *MessageWriter) Kind() MessageKind {
	return w.kind
}

func (w *MessageWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}
	n := 0
	for len(p) > 0 {
		k := FrameSize - len(w.buf)
		if k > len(p) {
			k = len(p)
		}
		w.buf = append(w.buf, p[:k]...)
		p = p[k:]
		n += k
		if len(w.buf) == FrameSize {
			if err := w.flush(false); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

func (w *MessageWriter) flush(fin bool) error {
	op := w.kind.opCode()
	if w.sent {
		op = ws.OpContinuation
	}
	err := w.c.writeFrame(ws.NewFrame(op, fin, w.buf))
	w.sent = true
	w.buf = w.buf[:0]
	return err
}

func (w *MessageWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.flush(true)
	<-w.c.wsem
	return err
}

// MessageReader reads one data message. Text messages are checked to
// be valid UTF-8.
type MessageReader struct {
	c      *Conn
	kind   MessageKind
	remain int64
	fin    bool
	utf8   *wsutil.UTF8Reader
	err    error
}

func (m *MessageReader) Kind() MessageKind {
	return m.kind
}

func (m *MessageReader) Read(p []byte) (int, error) {
	if m.utf8 == nil {
		return m.read(p)
	}
	n, err := m.utf8.Read(p)
	switch {
	case err == wsutil.ErrInvalidUTF8, err == io.EOF && !m.utf8.Valid():
		m.err = m.c.protocolError(ws.StatusInvalidFramePayloadData, wsutil.ErrInvalidUTF8)
		return n, m.err
	}
	return n, err
}

// Bytes reads the rest of the message.
func (m *MessageReader) Bytes() ([]byte, error) {
	return io.ReadAll(m)
}

func (m *MessageReader) read(p []byte) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	for m.remain == 0 {
		if m.fin {
			return 0, io.EOF
		}
		h, err := m.c.nextHeader(true)
		if err != nil {
			m.err = err
			return 0, err
		}
		m.remain, m.fin = h.Length, h.Fin
	}
	if int64(len(p)) > m.remain {
		p = p[:m.remain]
	}
	n, err := m.c.tr.Read(p)
	m.remain -= int64(n)
	if err != nil {
		m.err = m.c.fail(readError(err))
		return n, m.err
	}
	return n, nil
}

type rawReader struct {
	m *MessageReader
}

func (r rawReader) Read(p []byte) (int, error) {
	return r.m.read(p)
}
