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
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	. "launchpad.net/gocheck"
)

type sqlhSuite struct{ hSuite }

var _ = Suite(&sqlhSuite{})

func (s *sqlhSuite) SetUpSuite(c *C) {
	s.constructor = func() (History, error) { return NewSqliteHistory(":memory:") }
}

func (s *sqlhSuite) TestNewCanFail(c *C) {
	h, err := NewSqliteHistory("/does/not/exist")
	c.Assert(h, IsNil)
	c.Check(err, NotNil)
}

func (s *sqlhSuite) TestPersists(c *C) {
	filename := filepath.Join(c.MkDir(), "history.db")
	h, err := NewSqliteHistory(filename)
	c.Assert(err, IsNil)
	c.Assert(h.Record(Entry{When: t0, Method: "HEAD", URL: "https://example.com/", Status: 204}), IsNil)
	c.Assert(h.Close(), IsNil)

	h, err = NewSqliteHistory(filename)
	c.Assert(err, IsNil)
	defer h.Close()
	all, err := h.Recent(5)
	c.Assert(err, IsNil)
	c.Assert(all, HasLen, 1)
	c.Check(all[0].Method, Equals, "HEAD")
	c.Check(all[0].Status, Equals, 204)
	c.Check(all[0].When.Equal(t0), Equals, true)
}

func (s *sqlhSuite) TestRecordCanFail(c *C) {
	filename := filepath.Join(c.MkDir(), "test.db")
	db, err := sql.Open("sqlite3", filename)
	c.Assert(err, IsNil)
	// the wrong kind of table
	_, err = db.Exec("CREATE TABLE exchanges (foo)")
	c.Assert(err, IsNil)
	db.Close()
	h, err := NewSqliteHistory(filename)
	c.Assert(err, IsNil)
	defer h.Close()
	err = h.Record(Entry{Method: "GET", URL: "http://x/"})
	c.Check(err, ErrorMatches, "cannot record GET http://x/ in history: .*")
	_, err = h.Recent(1)
	c.Check(err, ErrorMatches, "cannot retrieve entries .*")
}

func (s *sqlhSuite) TestRecentCanFailDifferently(c *C) {
	filename := filepath.Join(c.MkDir(), "test.db")
	db, err := sql.Open("sqlite3", filename)
	c.Assert(err, IsNil)
	// a view with the name the table will have
	_, err = db.Exec("CREATE TABLE foo (foo)")
	c.Assert(err, IsNil)
	_, err = db.Exec("CREATE VIEW exchanges AS SELECT * FROM foo")
	c.Assert(err, IsNil)
	// break the view
	_, err = db.Exec("DROP TABLE foo")
	c.Assert(err, IsNil)
	db.Close()
	h, err := NewSqliteHistory(filename)
	c.Assert(err, IsNil)
	defer h.Close()
	_, err = h.Recent(1)
	c.Check(err, ErrorMatches, "cannot retrieve entries .*")
}
