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

// Package testing contains helpers for testing.
package testing

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// SyncedLogBuffer can be used with NewSimpleLogger avoiding races
// when checking the logging done from different goroutines.
type SyncedLogBuffer struct {
	bytes.Buffer
	lock    sync.Mutex
	Written chan bool
}

func (buf *SyncedLogBuffer) Write(b []byte) (int, error) {
	buf.lock.Lock()
	defer buf.lock.Unlock()
	n, err := buf.Buffer.Write(b)
	if buf.Written != nil {
		buf.Written <- true
	}
	return n, err
}

func (buf *SyncedLogBuffer) String() string {
	buf.lock.Lock()
	defer buf.lock.Unlock()
	return buf.Buffer.String()
}

type xAddr string

func (x xAddr) Network() string { return "<:>" }
func (x xAddr) String() string  { return string(x) }

// ScriptedConn is a net.Conn that serves a canned byte stream to
// reads and records writes. It counts any I/O attempted after Close.
type ScriptedConn struct {
	Name string
	// WriteLimit, when positive, makes writes fail once that many
	// bytes have been written.
	WriteLimit int

	lock         sync.Mutex
	input        *bytes.Reader
	written      bytes.Buffer
	closed       bool
	ioAfterClose int
	interrupted  bool
}

// NewScriptedConn returns a ScriptedConn whose reads yield input and
// then io.EOF.
func NewScriptedConn(name string, input []byte) *ScriptedConn {
	return &ScriptedConn{Name: name, input: bytes.NewReader(input)}
}

var errWriteLimit = errors.New("writer on fire")

func (sc *ScriptedConn) Read(b []byte) (int, error) {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	if sc.closed {
		sc.ioAfterClose++
		return 0, net.ErrClosed
	}
	if sc.interrupted {
		return 0, os.ErrDeadlineExceeded
	}
	return sc.input.Read(b)
}

func (sc *ScriptedConn) Write(b []byte) (int, error) {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	if sc.closed {
		sc.ioAfterClose++
		return 0, net.ErrClosed
	}
	if sc.interrupted {
		return 0, os.ErrDeadlineExceeded
	}
	if sc.WriteLimit > 0 && sc.written.Len()+len(b) > sc.WriteLimit {
		n := sc.WriteLimit - sc.written.Len()
		sc.written.Write(b[:n])
		return n, errWriteLimit
	}
	return sc.written.Write(b)
}

func (sc *ScriptedConn) Close() error {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	sc.closed = true
	return nil
}

// Written returns everything written so far.
func (sc *ScriptedConn) Written() string {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	return sc.written.String()
}

// Closed reports whether Close was called.
func (sc *ScriptedConn) Closed() bool {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	return sc.closed
}

// IOAfterClose returns the number of reads and writes attempted
// after Close.
func (sc *ScriptedConn) IOAfterClose() int {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	return sc.ioAfterClose
}

// Remaining returns the number of scripted input bytes not read yet.
func (sc *ScriptedConn) Remaining() int {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	return sc.input.Len()
}

func (sc *ScriptedConn) LocalAddr() net.Addr  { return xAddr(sc.Name) }
func (sc *ScriptedConn) RemoteAddr() net.Addr { return xAddr(sc.Name) }

func (sc *ScriptedConn) SetDeadline(t time.Time) error {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	sc.interrupted = !t.IsZero() && t.Before(time.Now())
	return nil
}

func (sc *ScriptedConn) SetReadDeadline(t time.Time) error  { return sc.SetDeadline(t) }
func (sc *ScriptedConn) SetWriteDeadline(t time.Time) error { return sc.SetDeadline(t) }

var _ net.Conn = (*ScriptedConn)(nil)
var _ io.ReadWriteCloser = (*ScriptedConn)(nil)
