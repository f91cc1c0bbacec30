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

package webcli

import (
	"github.com/ubports/async-web-client/config"
)

// Config holds the command line client configuration.
type Config struct {
	// The logging level (one of "debug", "info", "error")
	LogLevel string `json:"log_level"`
	// Deadline for the whole exchange, retries included
	Timeout config.ConfigTimeDuration `json:"timeout"`
	// The largest response body printed; negative for no limit
	BodyLimit config.ConfigByteSize `json:"body_limit"`
	// Connection attempts made before giving up
	Retries int `json:"retries"`
	// PEM-encoded certificates to trust on top of the system ones
	CertPEMFile string `json:"cert_pem_file"`
	// Whether to record exchanges in the history database
	History bool `json:"history"`
}

// Defaults are used for keys no configuration file sets.
var Defaults = map[string]interface{}{
	"log_level":     "error",
	"timeout":       "30s",
	"body_limit":    "1MiB",
	"retries":       1,
	"cert_pem_file": "",
	"history":       true,
}
