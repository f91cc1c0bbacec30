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

// Package webcli implements the async-web-client command line tool: a
// single HTTP/1.1 exchange or WebSocket round trip.
package webcli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"launchpad.net/go-xdg/v0"

	"github.com/ubports/async-web-client/body"
	"github.com/ubports/async-web-client/client"
	"github.com/ubports/async-web-client/config"
	"github.com/ubports/async-web-client/history"
	"github.com/ubports/async-web-client/logger"
	"github.com/ubports/async-web-client/transport"
	"github.com/ubports/async-web-client/util"
	"github.com/ubports/async-web-client/ws"
)

const Name = "async-web-client"

// headerFlags collects repeated -H "Name: value" flags.
type headerFlags []string

func (h *headerFlags) String() string { return strings.Join(*h, ", ") }

func (h *headerFlags) Set(v string) error {
	name, _, ok := strings.Cut(v, ":")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("header %q should be Name: value", v)
	}
	*h = append(*h, v)
	return nil
}

func (h headerFlags) apply(header http.Header) {
	for _, v := range h {
		name, value, _ := strings.Cut(v, ":")
		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
}

type options struct {
	method      string
	data        string
	headers     headerFlags
	ws          bool
	limit       int64
	retries     int
	configPath  string
	listHistory int
	url         string
}

// App is one run of the command line client.
type App struct {
	stdout io.Writer
	stderr io.Writer
	opts   options
	config Config
	log    logger.Logger
	client *client.Client
	hist   history.History

	// overridden for testing
	findConfig  func(string) (string, error)
	historyPath func(string) (string, error)
	now         func() time.Time
}

// NewApp returns an App writing results to stdout and diagnostics to
// stderr.
func NewApp(stdout, stderr io.Writer) *App {
	return &App{
		stdout:      stdout,
		stderr:      stderr,
		findConfig:  xdg.Config.Find,
		historyPath: xdg.Data.Ensure,
		now:         time.Now,
	}
}

var errUsage = errors.New("usage")

func (app *App) parseFlags(args []string) error {
	fs := flag.NewFlagSet(Name, flag.ContinueOnError)
	fs.SetOutput(app.stderr)
	fs.Usage = func() {
		fmt.Fprintf(app.stderr, "Usage: %s [options] <url>\n", Name)
		fs.PrintDefaults()
	}
	o := &app.opts
	fs.StringVar(&o.method, "X", "", "request method (default GET, or POST with -d)")
	fs.StringVar(&o.data, "d", "", "request body; with -ws, the text message to send")
	fs.Var(&o.headers, "H", "extra request header, Name: value (repeatable)")
	fs.BoolVar(&o.ws, "ws", false, "upgrade to a WebSocket, send -d and print the first message back")
	fs.Int64Var(&o.limit, "limit", -2, "largest response body printed, -1 for no limit (default from config)")
	fs.IntVar(&o.retries, "retries", -1, "connection attempts (default from config)")
	fs.StringVar(&o.configPath, "config", "", "configuration file (default found through XDG)")
	fs.IntVar(&o.listHistory, "history", 0, "list the given number of recent exchanges and exit")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if o.listHistory > 0 {
		return nil
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(app.stderr, "missing url\n")
		fs.Usage()
		return errUsage
	}
	o.url = fs.Arg(0)
	if o.method == "" {
		o.method = http.MethodGet
		if o.data != "" {
			o.method = http.MethodPost
		}
	}
	return nil
}

// configure loads the configuration, and sets things up.
func (app *App) configure() error {
	cfgPath := app.opts.configPath
	if cfgPath == "" {
		// no configuration file is fine
		cfgPath, _ = app.findConfig(Name + "/config.json")
	}
	var paths []string
	if cfgPath != "" {
		paths = append(paths, cfgPath)
	}
	err := config.ReadFilesDefaults(&app.config, Defaults, paths...)
	if err != nil {
		return fmt.Errorf("reading config: %v", err)
	}
	if !logger.ValidLevel(app.config.LogLevel) {
		return fmt.Errorf("reading config: bad log_level %q", app.config.LogLevel)
	}
	app.log = logger.NewSimpleLogger(app.stderr, app.config.LogLevel)
	if app.opts.limit != -2 {
		app.config.BodyLimit = config.ConfigByteSize(app.opts.limit)
	}
	if app.opts.retries >= 0 {
		app.config.Retries = app.opts.retries
	}

	app.client = &client.Client{Log: app.log}
	if app.config.CertPEMFile != "" {
		pem, err := config.LoadFile(app.config.CertPEMFile, filepath.Dir(cfgPath))
		if err != nil {
			return fmt.Errorf("reading PEM file: %v", err)
		}
		app.client.TLSConfig, err = transport.NewTLSConfig(pem)
		if err != nil {
			return fmt.Errorf("reading PEM file: %v", err)
		}
	}

	if app.config.History || app.opts.listHistory > 0 {
		p, err := app.historyPath(Name + "/history.db")
		if err != nil {
			return fmt.Errorf("opening history: %v", err)
		}
		app.hist, err = history.NewSqliteHistory(p)
		if err != nil {
			return err
		}
	} else {
		app.hist, _ = history.NewHistory()
	}
	return nil
}

// Run runs the client with the given arguments and returns the exit
// status.
func (app *App) Run(args []string) int {
	if err := app.parseFlags(args); err != nil {
		return 2
	}
	if err := app.configure(); err != nil {
		fmt.Fprintf(app.stderr, "%s: %v\n", Name, err)
		return 1
	}
	defer app.hist.Close()
	if app.opts.listHistory > 0 {
		if err := app.printHistory(app.opts.listHistory); err != nil {
			app.log.Errorf("%v", err)
			return 1
		}
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), app.config.Timeout.TimeDuration())
	defer cancel()
	entry := history.Entry{When: app.now(), Method: app.opts.method, URL: app.opts.url}
	var status int
	var err error
	if app.opts.ws {
		entry.Method = http.MethodGet
		status, err = app.webSocket(ctx)
	} else {
		status, err = app.exchange(ctx)
	}
	entry.Status = status
	entry.Elapsed = app.now().Sub(entry.When)
	if err != nil {
		entry.Err = err.Error()
	}
	if herr := app.hist.Record(entry); herr != nil {
		app.log.Errorf("%v", herr)
	}
	if err != nil {
		app.log.Errorf("%v", err)
		fmt.Fprintf(app.stderr, "%s: %v\n", Name, err)
		return 1
	}
	return 0
}

func (app *App) retrier() *util.Retrier {
	attempts := app.config.Retries
	if attempts < 1 {
		attempts = 1
	}
	return &util.Retrier{MaxAttempts: uint32(attempts), Log: app.log}
}

// exchange sends the request and prints the response.
func (app *App) exchange(ctx context.Context) (int, error) {
	req, err := client.NewRequest(app.opts.method, app.opts.url)
	if err != nil {
		return 0, err
	}
	app.opts.headers.apply(req.Header)
	if app.opts.data != "" {
		req.WithBody(body.String(app.opts.data))
	}
	var resp *client.Response
	_, err = app.retrier().Retry(ctx, func(ctx context.Context) error {
		resp, err = app.client.Do(ctx, req)
		if resp == nil {
			return err
		}
		if errors.Is(err, client.Redirect) {
			app.log.Infof("not following redirect to %s", resp.Header.Get("Location"))
			err = nil
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := resp.Head().Encode(app.stdout); err != nil {
		return resp.StatusCode, err
	}
	data, err := resp.Body.Bytes(app.config.BodyLimit.ByteSize())
	if err != nil {
		return resp.StatusCode, err
	}
	_, err = app.stdout.Write(data)
	return resp.StatusCode, err
}

// webSocket upgrades, sends the data as a text message and prints the
// first message that comes back.
func (app *App) webSocket(ctx context.Context) (int, error) {
	req, err := ws.UpgradeRequest(app.opts.url)
	if err != nil {
		return 0, err
	}
	app.opts.headers.apply(req.Header)
	var conn *ws.Conn
	_, err = app.retrier().Retry(ctx, func(ctx context.Context) error {
		conn, err = ws.Connect(ctx, app.client, req)
		return err
	})
	if err != nil {
		var ue *ws.UpgradeResponseError
		if errors.As(err, &ue) {
			return ue.Head.StatusCode, err
		}
		return 0, err
	}
	defer conn.Close()
	status := http.StatusSwitchingProtocols
	if err := conn.SendText(ctx, app.opts.data); err != nil {
		return status, err
	}
	m, err := conn.Next(ctx)
	if err != nil {
		return status, err
	}
	var r io.Reader = m
	limit := app.config.BodyLimit.ByteSize()
	if limit >= 0 {
		r = io.LimitReader(m, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return status, err
	}
	if limit >= 0 && int64(len(data)) > limit {
		return status, &client.Error{Kind: client.OutOfMemory, Value: strconv.FormatInt(limit, 10)}
	}
	fmt.Fprintf(app.stdout, "%s message: %s\n", m.Kind(), data)
	return status, nil
}

func (app *App) printHistory(n int) error {
	entries, err := app.hist.Recent(n)
	if err != nil {
		return err
	}
	for _, e := range entries {
		outcome := fmt.Sprint(e.Status)
		if e.Err != "" {
			outcome = "error: " + e.Err
		}
		fmt.Fprintf(app.stdout, "%s %s %s %s (%v)\n",
			e.When.Format(time.RFC3339), e.Method, e.URL, outcome, e.Elapsed.Round(time.Millisecond))
	}
	return nil
}
