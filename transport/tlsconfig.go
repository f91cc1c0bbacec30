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

package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
)

// NewTLSConfig returns a client TLS configuration trusting the system
// anchors plus the PEM-encoded certificates given.
func NewTLSConfig(pemCerts []byte) (*tls.Config, error) {
	cp, err := x509.SystemCertPool()
	if err != nil || cp == nil {
		cp = x509.NewCertPool()
	}
	if !cp.AppendCertsFromPEM(pemCerts) {
		return nil, errors.New("could not parse certificate")
	}
	return &tls.Config{
		RootCAs:    cp,
		MinVersion: tls.VersionTLS12,
		NextProtos: []string{"http/1.1"},
	}, nil
}
