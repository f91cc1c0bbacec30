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

// Package protocol has code to encode HTTP/1.1 request heads and to
// decode response heads and body framing from a buffered stream.
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// MaxHeadBytes bounds the size of a response head.
const MaxHeadBytes = 64 * 1024

var (
	ErrMalformedHead = errors.New("malformed response head")
	ErrHeadTooLarge  = errors.New("response head too large")
)

// RequestHead is what goes on the wire before the body.
type RequestHead struct {
	Method string
	Target string
	Header http.Header
}

// WriteRequestHead writes the request line and headers. Host goes
// first, the remaining headers in key order. Nothing is validated
// here.
func WriteRequestHead(w io.Writer, head *RequestHead) error {
	_, err := fmt.Fprintf(w, "%s %s HTTP/1.1\r\n", head.Method, head.Target)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(head.Header))
	for k := range head.Header {
		if k != "Host" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := head.Header["Host"]; ok {
		keys = append([]string{"Host"}, keys...)
	}
	for _, k := range keys {
		for _, v := range head.Header[k] {
			_, err = fmt.Fprintf(w, "%s: %s\r\n", k, v)
			if err != nil {
				return err
			}
		}
	}
	_, err = io.WriteString(w, "\r\n")
	return err
}

// ResponseHead is a decoded status line plus headers.
type ResponseHead struct {
	StatusCode int
	Reason     string
	Proto      string
	ProtoMajor int
	ProtoMinor int
	Header     http.Header
}

// Status returns the status line sans protocol, e.g. "200 OK".
func (h *ResponseHead) Status() string {
	if h.Reason == "" {
		return strconv.Itoa(h.StatusCode)
	}
	return strconv.Itoa(h.StatusCode) + " " + h.Reason
}

// Encode writes the head back in wire form.
func (h *ResponseHead) Encode(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s %s\r\n", h.Proto, h.Status())
	if err != nil {
		return err
	}
	err = h.Header.Write(w)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "\r\n")
	return err
}

// Interim reports 1xx responses other than 101, which precede the
// final response.
func (h *ResponseHead) Interim() bool {
	return h.StatusCode >= 100 && h.StatusCode < 200 && h.StatusCode != http.StatusSwitchingProtocols
}

// ReadResponseHead reads a status line and headers from br, consuming
// exactly through the blank line that ends the head.
func ReadResponseHead(br *bufio.Reader) (*ResponseHead, error) {
	budget := MaxHeadBytes
	line, err := readLine(br, &budget)
	if err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, err
	}
	head, err := parseStatusLine(line)
	if err != nil {
		return nil, err
	}
	var last string
	for {
		line, err = readLine(br, &budget)
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}
		if line == "" {
			return head, nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			// obsolete line folding
			vs := head.Header[last]
			if len(vs) == 0 {
				return nil, ErrMalformedHead
			}
			vs[len(vs)-1] += " " + strings.TrimSpace(line)
			continue
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 || !httpguts.ValidHeaderFieldName(line[:i]) {
			return nil, ErrMalformedHead
		}
		last = http.CanonicalHeaderKey(line[:i])
		head.Header.Add(last, strings.Trim(line[i+1:], " \t"))
	}
}

func parseStatusLine(line string) (*ResponseHead, error) {
	proto, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, ErrMalformedHead
	}
	major, minor, ok := http.ParseHTTPVersion(proto)
	if !ok || major != 1 {
		return nil, ErrMalformedHead
	}
	code, reason, _ := strings.Cut(rest, " ")
	if len(code) != 3 {
		return nil, ErrMalformedHead
	}
	status, err := strconv.Atoi(code)
	if err != nil || status < 100 {
		return nil, ErrMalformedHead
	}
	return &ResponseHead{
		StatusCode: status,
		Reason:     reason,
		Proto:      proto,
		ProtoMajor: major,
		ProtoMinor: minor,
		Header:     make(http.Header),
	}, nil
}

// readLine reads one line without its terminator, charging its length
// to budget.
func readLine(br *bufio.Reader, budget *int) (string, error) {
	var sb strings.Builder
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				err = io.ErrUnexpectedEOF
			}
			return "", err
		}
		*budget--
		if *budget < 0 {
			return "", ErrHeadTooLarge
		}
		if b == '\n' {
			break
		}
		sb.WriteByte(b)
	}
	return strings.TrimSuffix(sb.String(), "\r"), nil
}
