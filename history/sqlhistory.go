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

package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type sqliteHistory struct {
	db *sql.DB
}

// NewSqliteHistory returns an implementation of History that keeps and
// persists the entries in an sqlite database.
func NewSqliteHistory(filename string) (History, error) {
	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("cannot open sqlite history %#v: %v", filename, err)
	}
	// each connection to :memory: is a different database
	db.SetMaxOpenConns(1)
	_, err = db.Exec("CREATE TABLE IF NOT EXISTS exchanges (" +
		"id integer primary key autoincrement, " +
		"at integer, method text, url text, status integer, err text, elapsed integer)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot (re)create sqlite history table: %v", err)
	}
	return &sqliteHistory{db}, nil
}

func (h *sqliteHistory) Record(e Entry) error {
	_, err := h.db.Exec("INSERT INTO exchanges (at, method, url, status, err, elapsed) VALUES (?, ?, ?, ?, ?, ?)",
		e.When.UnixNano(), e.Method, e.URL, e.Status, e.Err, int64(e.Elapsed))
	if err != nil {
		return fmt.Errorf("cannot record %s %s in history: %v", e.Method, e.URL, err)
	}
	return nil
}

func (h *sqliteHistory) Recent(n int) ([]Entry, error) {
	rows, err := h.db.Query("SELECT at, method, url, status, err, elapsed FROM exchanges ORDER BY at DESC, id DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("cannot retrieve entries from sqlite history: %v", err)
	}
	defer rows.Close()
	res := []Entry{}
	for rows.Next() {
		var e Entry
		var at, elapsed int64
		err = rows.Scan(&at, &e.Method, &e.URL, &e.Status, &e.Err, &elapsed)
		if err != nil {
			return nil, fmt.Errorf("cannot read entry from sqlite history: %v", err)
		}
		e.When = time.Unix(0, at)
		e.Elapsed = time.Duration(elapsed)
		res = append(res, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("cannot read entry from sqlite history: %v", err)
	}
	return res, nil
}

func (h *sqliteHistory) Close() error {
	return h.db.Close()
}
