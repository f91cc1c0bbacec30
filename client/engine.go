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
	"sync"

	"github.com/ubports/async-web-client/logger"
	"github.com/ubports/async-web-client/protocol"
	"github.com/ubports/async-web-client/transport"
)

// Phase is the position of a RequestSend in the exchange.
type Phase uint8

const (
	Start Phase = iota
	PendingConnect
	SendingHead
	SendingBody
	Flushing
	ReceivingHead
	Finished
	// advancing is held while a phase is being stepped.
	advancing
)

func (p Phase) String() string {
	if p > advancing {
		return fmt.Sprintf("??? (%d)", p)
	}
	return [advancing + 1]string{
		"Start",
		"PendingConnect",
		"SendingHead",
		"SendingBody",
		"Flushing",
		"ReceivingHead",
		"Finished",
		"advancing",
	}[p]
}

// BufferSize is the size of the buffer request bodies are pumped
// through.
const BufferSize = 16 * 1024

// phaseState is what a phase owns. Each step consumes one and yields
// the next.
type phaseState interface {
	phase() Phase
	// transport returns the owned transport, if any.
	transport() *transport.Transport
}

type startState struct {
	req *Request
}

type connectState struct {
	origin  Origin
	head    *protocol.RequestHead
	src     io.Reader
	length  uint64
	chunked bool
}

type headState struct {
	tr      *transport.Transport
	head    *protocol.RequestHead
	src     io.Reader
	length  uint64
	chunked bool
}

type bodyState struct {
	tr     *transport.Transport
	enc    protocol.BodyEncoder
	src    io.Reader
	remain uint64
	buf    []byte
}

type flushState struct {
	tr *transport.Transport
}

type receiveState struct {
	tr *transport.Transport
}

type finishedState struct {
	resp *Response
	err  error
}

type advancingState struct{}

func (*startState) phase() Phase    { return Start }
func (*connectState) phase() Phase  { return PendingConnect }
func (*headState) phase() Phase     { return SendingHead }
func (*bodyState) phase() Phase     { return SendingBody }
func (*flushState) phase() Phase    { return Flushing }
func (*receiveState) phase() Phase  { return ReceivingHead }
func (*finishedState) phase() Phase { return Finished }
func (advancingState) phase() Phase { return advancing }

func (*startState) transport() *transport.Transport     { return nil }
func (*connectState) transport() *transport.Transport   { return nil }
func (s *headState) transport() *transport.Transport    { return s.tr }
func (s *bodyState) transport() *transport.Transport    { return s.tr }
func (s *flushState) transport() *transport.Transport   { return s.tr }
func (s *receiveState) transport() *transport.Transport { return s.tr }
func (*finishedState) transport() *transport.Transport  { return nil }
func (advancingState) transport() *transport.Transport  { return nil }

// source returns the body source a phase may block reading.
func source(st phaseState) io.Reader {
	switch st := st.(type) {
	case *headState:
		return st.src
	case *bodyState:
		return st.src
	}
	return nil
}

// RequestSend drives one request over one fresh connection, a phase
// at a time. It spawns no goroutines; Step and Wait block the caller
// for at most one phase worth of I/O each call.
type RequestSend struct {
	client *Client
	method string
	log    logger.Logger

	lock     sync.Mutex
	state    phaseState
	closed   bool
	taken    bool
	cancel   context.CancelFunc
	inflight *transport.Transport
}

func newRequestSend(c *Client, req *Request, log logger.Logger) *RequestSend {
	return &RequestSend{
		client: c,
		method: req.Method,
		log:    log,
		state:  &startState{req},
	}
}

// Phase returns the current phase.
func (rs *RequestSend) Phase() Phase {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	return rs.state.phase()
}

// Step advances one phase. done is true once the request reached
// Finished, successfully or not. Stepping a finished request fails
// with ErrFinished.
func (rs *RequestSend) Step(ctx context.Context) (done bool, err error) {
	rs.lock.Lock()
	cur := rs.state
	switch cur.(type) {
	case *finishedState:
		rs.lock.Unlock()
		return true, ErrFinished
	case advancingState:
		rs.lock.Unlock()
		return false, ErrBusy
	}
	rs.state = advancingState{}
	stepCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.inflight = cur.transport()
	rs.lock.Unlock()

	tr, src := cur.transport(), source(cur)
	stop := context.AfterFunc(stepCtx, func() {
		if tr != nil {
			tr.Interrupt()
		}
		// a read from the caller's source only ends if the source does
		if c, ok := src.(io.Closer); ok {
			c.Close()
		}
	})
	next, err := rs.advance(stepCtx, cur)
	if !stop() && err == nil {
		// interrupted after the phase completed
		err = ioError(stepCtx, context.Canceled)
		release(next)
		next = nil
	}
	cancel()

	rs.lock.Lock()
	defer rs.lock.Unlock()
	rs.cancel = nil
	rs.inflight = nil
	if rs.closed {
		if err == nil {
			release(next)
		} else {
			release(cur)
		}
		rs.state = &finishedState{err: ErrClosed}
		rs.log.Debugf("%s -> Finished (closed)", cur.phase())
		return true, ErrClosed
	}
	if err != nil {
		release(cur)
		rs.state = &finishedState{err: err}
		rs.log.Debugf("%s -> Finished: %v", cur.phase(), err)
		return true, err
	}
	rs.state = next
	rs.log.Debugf("%s -> %s", cur.phase(), next.phase())
	_, done = next.(*finishedState)
	return done, nil
}

// Wait steps the request until it finishes and returns the response.
// The response is only handed out once.
func (rs *RequestSend) Wait(ctx context.Context) (*Response, error) {
	for {
		done, err := rs.Step(ctx)
		if err != nil {
			return nil, err
		}
		if done {
			return rs.result()
		}
	}
}

// Result returns the outcome of a finished request. The response is
// only handed out once; the error as many times as asked.
func (rs *RequestSend) Result() (*Response, error) {
	return rs.result()
}

func (rs *RequestSend) result() (*Response, error) {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	fin, ok := rs.state.(*finishedState)
	if !ok {
		return nil, errors.New("request not finished")
	}
	if fin.err != nil {
		return nil, fin.err
	}
	if rs.taken {
		return nil, ErrFinished
	}
	rs.taken = true
	return fin.resp, nil
}

// Close abandons the request. The transport is closed before Close
// returns and no further I/O is performed on it. Close may be called
// from another goroutine while Step is blocked; a Step blocked reading
// a body source that is an io.Closer is ended by closing the source.
func (rs *RequestSend) Close() {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	if rs.closed {
		return
	}
	rs.closed = true
	switch st := rs.state.(type) {
	case advancingState:
		// Step releases the rest of what the phase holds when it
		// returns
		if rs.inflight != nil {
			rs.inflight.Close()
		}
		if rs.cancel != nil {
			rs.cancel()
		}
		return
	case *finishedState:
		if st.resp != nil && !rs.taken {
			st.resp.Body.Close()
		}
		if st.err == nil && !rs.taken {
			st.err = ErrClosed
		}
		return
	}
	release(rs.state)
	rs.log.Debugf("%s -> Finished (closed)", rs.state.phase())
	rs.state = &finishedState{err: ErrClosed}
}

func release(st phaseState) {
	if st == nil {
		return
	}
	if tr := st.transport(); tr != nil {
		tr.Close()
	}
	if fin, ok := st.(*finishedState); ok && fin.resp != nil {
		fin.resp.Body.Close()
	}
}

func (rs *RequestSend) advance(ctx context.Context, cur phaseState) (phaseState, error) {
	switch st := cur.(type) {
	case *startState:
		return rs.start(st)
	case *connectState:
		return rs.connect(ctx, st)
	case *headState:
		return rs.sendHead(ctx, st)
	case *bodyState:
		return rs.sendBody(ctx, st)
	case *flushState:
		return rs.flush(ctx, st)
	case *receiveState:
		return rs.receiveHead(ctx, st)
	}
	panic(fmt.Sprintf("cannot advance %s", cur.phase()))
}

func (rs *RequestSend) start(st *startState) (phaseState, error) {
	origin, head, src, length, err := st.req.prepare()
	if err != nil {
		return nil, err
	}
	rs.log.Debugf("%s %s to %s", head.Method, head.Target, origin)
	return &connectState{
		origin:  origin,
		head:    head,
		src:     src,
		length:  length,
		chunked: st.req.chunked(),
	}, nil
}

func (rs *RequestSend) connect(ctx context.Context, st *connectState) (phaseState, error) {
	tr, err := rs.client.connect(ctx, st.origin)
	if err != nil {
		return nil, &Error{Kind: Connect, Value: st.origin.Host, Err: err}
	}
	return &headState{
		tr:      tr,
		head:    st.head,
		src:     st.src,
		length:  st.length,
		chunked: st.chunked,
	}, nil
}

func (rs *RequestSend) sendHead(ctx context.Context, st *headState) (phaseState, error) {
	err := protocol.WriteRequestHead(st.tr, st.head)
	if err != nil {
		return nil, ioError(ctx, err)
	}
	enc := protocol.NewBodyEncoder(st.tr, st.length, st.chunked)
	if st.length == 0 {
		err = rs.finishBody(ctx, st.src, enc)
		if err != nil {
			return nil, err
		}
		return &flushState{st.tr}, nil
	}
	return &bodyState{
		tr:     st.tr,
		enc:    enc,
		src:    st.src,
		remain: st.length,
		buf:    make([]byte, BufferSize),
	}, nil
}

// sendBody moves at most one buffer of the body.
func (rs *RequestSend) sendBody(ctx context.Context, st *bodyState) (phaseState, error) {
	n := uint64(len(st.buf))
	if n > st.remain {
		n = st.remain
	}
	got, err := io.ReadFull(st.src, st.buf[:n])
	if err != nil && ctx.Err() != nil {
		return nil, ioError(ctx, err)
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, &Error{Kind: UnexpectedEOF, Value: fmt.Sprintf("%d bytes short", st.remain-uint64(got)), Err: io.ErrUnexpectedEOF}
	}
	if err != nil {
		return nil, &Error{Kind: IO, Err: err}
	}
	_, err = st.enc.Write(st.buf[:got])
	if err != nil {
		return nil, ioError(ctx, err)
	}
	st.remain -= uint64(got)
	if st.remain > 0 {
		return st, nil
	}
	err = rs.finishBody(ctx, st.src, st.enc)
	if err != nil {
		return nil, err
	}
	return &flushState{st.tr}, nil
}

// finishBody checks the source has nothing past its declared length
// and closes the framing.
func (rs *RequestSend) finishBody(ctx context.Context, src io.Reader, enc protocol.BodyEncoder) error {
	var probe [1]byte
	n, err := io.ReadFull(src, probe[:])
	if n > 0 {
		return &Error{Kind: BodyOverrun, Err: protocol.ErrBodyOverrun}
	}
	if err != io.EOF && ctx.Err() != nil {
		return ioError(ctx, err)
	}
	if err != io.EOF {
		return &Error{Kind: IO, Err: err}
	}
	err = enc.Close()
	if err != nil {
		return ioError(ctx, err)
	}
	return nil
}

func (rs *RequestSend) flush(ctx context.Context, st *flushState) (phaseState, error) {
	err := st.tr.Flush()
	if err != nil {
		return nil, ioError(ctx, err)
	}
	return &receiveState{st.tr}, nil
}

func (rs *RequestSend) receiveHead(ctx context.Context, st *receiveState) (phaseState, error) {
	head, err := protocol.ReadResponseHead(st.tr.Reader())
	switch err {
	case nil:
	case protocol.ErrMalformedHead, protocol.ErrHeadTooLarge:
		return nil, &Error{Kind: InvalidData, Err: err}
	default:
		return nil, ioError(ctx, err)
	}
	if head.Interim() {
		rs.log.Debugf("skipping interim response %s", head.Status())
		return st, nil
	}
	framing, length, err := protocol.ResponseFraming(rs.method, head)
	if err != nil {
		var te *protocol.UnsupportedTransferEncodingError
		if errors.As(err, &te) {
			return nil, &Error{Kind: UnsupportedTransferEncoding, Header: "Transfer-Encoding", Value: te.Value, Err: err}
		}
		var cl *protocol.InvalidContentLengthError
		if errors.As(err, &cl) {
			return nil, &Error{Kind: InvalidContentLength, Header: "Content-Length", Value: cl.Value, Err: err}
		}
		return nil, &Error{Kind: InvalidData, Err: err}
	}
	rs.log.Debugf("response %s, body %s", head.Status(), framing)
	b := newResponseBody(st.tr, protocol.NewBodyDecoder(st.tr.Reader(), framing, length))
	return &finishedState{resp: newResponse(head, b)}, nil
}
