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
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Origin is scheme, host and port of a connection target.
type Origin struct {
	Encrypted bool
	Host      string
	Port      uint16
	// ExplicitPort is set when the port came from the target or
	// Host header rather than from the scheme default.
	ExplicitPort bool
}

// Scheme returns "https" or "http".
func (o Origin) Scheme() string {
	if o.Encrypted {
		return "https"
	}
	return "http"
}

// HostHeader returns the value to send as Host: the port is only
// included when it was explicit.
func (o Origin) HostHeader() string {
	host := o.Host
	if strings.IndexByte(host, ':') >= 0 && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	if o.ExplicitPort {
		return host + ":" + strconv.Itoa(int(o.Port))
	}
	return host
}

func (o Origin) String() string {
	return o.Scheme() + "://" + net.JoinHostPort(o.Host, strconv.Itoa(int(o.Port)))
}

// ResolveOrigin works out where a request goes. The authority of u
// wins; otherwise the Host header must be exactly host[:port]. Targets
// without a scheme go over TLS.
func ResolveOrigin(u *url.URL, header http.Header) (Origin, error) {
	var host, port string
	if u.Host != "" {
		host, port = u.Hostname(), u.Port()
		if host == "" {
			return Origin{}, &Error{Kind: InvalidURI, Value: u.String()}
		}
	} else {
		hv := header.Get("Host")
		var ok bool
		host, port, ok = splitHostHeader(hv)
		if !ok {
			return Origin{}, &Error{Kind: MissingHost, Header: headerIfSet(hv), Value: hv}
		}
	}
	var o Origin
	switch u.Scheme {
	case "", "https":
		o.Encrypted = true
		o.Port = 443
	case "http":
		o.Port = 80
	default:
		return Origin{}, &Error{Kind: UnexpectedScheme, Value: u.Scheme}
	}
	o.Host = host
	if port != "" {
		p, err := strconv.ParseUint(port, 10, 16)
		if err != nil || p == 0 {
			return Origin{}, &Error{Kind: InvalidURI, Value: port, Err: err}
		}
		o.Port = uint16(p)
		o.ExplicitPort = true
	}
	return o, nil
}

func headerIfSet(v string) string {
	if v == "" {
		return ""
	}
	return "Host"
}

// splitHostHeader accepts host, host:port, [v6] and [v6]:port, with
// nothing else around them.
func splitHostHeader(hv string) (host, port string, ok bool) {
	if hv == "" {
		return "", "", false
	}
	rest := hv
	if strings.HasPrefix(hv, "[") {
		end := strings.IndexByte(hv, ']')
		if end < 0 {
			return "", "", false
		}
		host, rest = hv[1:end], hv[end+1:]
		if ip := net.ParseIP(host); ip == nil || ip.To4() != nil {
			return "", "", false
		}
	} else {
		host, rest, _ = strings.Cut(hv, ":")
		if rest != "" || strings.HasSuffix(hv, ":") {
			rest = ":" + rest
		}
		if host == "" || strings.ContainsAny(host, "/?#@[] \t") {
			return "", "", false
		}
	}
	if rest == "" {
		return host, "", true
	}
	if rest[0] != ':' || len(rest) == 1 || strings.TrimLeft(rest[1:], "0123456789") != "" {
		return "", "", false
	}
	return host, rest[1:], true
}
